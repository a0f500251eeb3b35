package rotation

import (
	"fmt"
	"log/slog"
	"strings"
)

// candidateCeiling is the hard upper bound on the candidate count. A larger
// set indicates a filtering defect, not a legitimate batch, and aborts the
// operation. Deliberately a reviewed-in-code constant, not configuration.
const candidateCeiling = 10

// protectedIdentities is a belt-and-suspenders exclusion list checked
// independently of the role filter.
var protectedIdentities = map[string]struct{}{
	"admin@navimedi.com":   {},
	"support@navimedi.com": {},
	"root@navimedi.com":    {},
	"ops@navimedi.com":     {},
}

// nonProductionDomains are the only email domains eligible for rotation.
var nonProductionDomains = []NonProductionDomain{
	"test.com",
	"example.com",
	"demo.com",
}

// nonProductionSubdomains are tenant slugs conventionally used for
// non-production tenants. Compared case-insensitively.
var nonProductionSubdomains = map[string]struct{}{
	"test":    {},
	"demo":    {},
	"sample":  {},
	"dev":     {},
	"sandbox": {},
}

// Selector applies the ordered scoping pipeline over the active account
// population. It performs no mutation.
type Selector struct {
	logger *slog.Logger
}

// NewSelector constructs a Selector.
func NewSelector(logger *slog.Logger) *Selector {
	return &Selector{logger: logger}
}

// Select runs the six filter stages in order and returns the bounded
// candidate list. The surviving count after each stage is logged for
// operability. Exceeding the safety ceiling returns ErrSecurityAbort.
func (s *Selector) Select(accounts []Account) ([]Account, error) {
	out := accounts

	out = s.stage(out, "exclude privileged roles", func(a Account) bool {
		return !a.Role.Privileged()
	})
	out = s.stage(out, "exclude protected identities", func(a Account) bool {
		_, protected := protectedIdentities[strings.ToLower(a.Email)]
		return !protected
	})
	out = s.stage(out, "require non-production email domain", func(a Account) bool {
		for _, d := range nonProductionDomains {
			if d.Matches(a.Email) {
				return true
			}
		}
		return false
	})
	out = s.stage(out, "require non-production tenant", func(a Account) bool {
		if a.TenantID == nil {
			return false
		}
		_, ok := nonProductionSubdomains[strings.ToLower(a.TenantSubdomain)]
		return ok
	})
	out = s.stage(out, "require safe-role allowlist", func(a Account) bool {
		return a.Role.SafeToRotate()
	})

	if len(out) > candidateCeiling {
		return nil, fmt.Errorf("%w: %d candidates exceed ceiling of %d",
			ErrSecurityAbort, len(out), candidateCeiling)
	}
	return out, nil
}

func (s *Selector) stage(in []Account, name string, keep func(Account) bool) []Account {
	out := make([]Account, 0, len(in))
	for _, a := range in {
		if keep(a) {
			out = append(out, a)
		}
	}
	if s.logger != nil {
		s.logger.Info("candidate filter stage", slog.String("stage", name), slog.Int("remaining", len(out)))
	}
	return out
}
