package rotation

import (
	"regexp"
	"time"
)

// Role enumerates the account roles known to the platform.
type Role string

const (
	RoleSuperAdmin        Role = "super_admin"
	RoleTenantAdmin       Role = "tenant_admin"
	RoleDirector          Role = "director"
	RoleClinicianInCharge Role = "clinician_in_charge"
	RolePatientPortal     Role = "patient_portal"
	RoleFrontDesk         Role = "front_desk"
	RoleBillingClerk      Role = "billing_clerk"
)

// Privileged reports whether the role must never be touched by bulk rotation.
func (r Role) Privileged() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleDirector, RoleClinicianInCharge:
		return true
	}
	return false
}

// SafeToRotate reports whether the role is on the explicit rotation allowlist.
// Not being privileged is necessary but not sufficient.
func (r Role) SafeToRotate() bool {
	switch r {
	case RolePatientPortal, RoleFrontDesk, RoleBillingClerk:
		return true
	}
	return false
}

// TenantType enumerates tenant classifications.
type TenantType string

const (
	TenantTypePlatform TenantType = "platform"
	TenantTypeClinic   TenantType = "clinic"
	TenantTypeHospital TenantType = "hospital"
)

// NonProductionDomain is an email domain whose accounts are conventionally
// non-production. Matching is full-string anchored on the domain part, so
// lookalike domains such as "evil-test.com" never match.
type NonProductionDomain string

// Matches reports whether email belongs to the domain.
func (d NonProductionDomain) Matches(email string) bool {
	re, ok := nonProductionDomainPatterns[d]
	if !ok {
		return false
	}
	return re.MatchString(email)
}

var nonProductionDomainPatterns = map[NonProductionDomain]*regexp.Regexp{}

func compileDomainPattern(d NonProductionDomain) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^[^@\s]+@` + regexp.QuoteMeta(string(d)) + `$`)
}

func init() {
	for _, d := range nonProductionDomains {
		nonProductionDomainPatterns[d] = compileDomainPattern(d)
	}
}

// Account represents a user account as seen by the rotation engine. The
// engine only ever mutates the credential fields; accounts are never created
// or deleted here.
type Account struct {
	ID                  int64
	TenantID            *int64
	TenantSubdomain     string
	Role                Role
	Email               string
	PasswordHash        string
	MustChangePassword  bool
	IsTemporaryPassword bool
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Tenant is read-only to this engine; it is used to classify accounts.
type Tenant struct {
	ID        int64
	Subdomain string
	Type      TenantType
}

// RollbackEntry captures the state needed to reverse one account's rotation.
// PreviousHash is nil exactly when Meta.HasRecoverableHash is false.
type RollbackEntry struct {
	OperationID  string
	UserID       int64
	TenantID     int64
	PreviousHash *string
	Meta         RollbackMeta
	CreatedBy    string
	CreatedAt    time.Time
}

// AuditAction enumerates the audit row kinds this engine writes.
type AuditAction string

const (
	AuditActionExecute  AuditAction = "credentials.bulk_reset"
	AuditActionRollback AuditAction = "credentials.bulk_reset_rollback"
)

// AuditEntry is a single batch-level audit row. Meta is the encoded,
// secret-free payload produced by the metadata boundary.
type AuditEntry struct {
	TenantID    int64
	Action      AuditAction
	OperationID string
	Meta        []byte
	Actor       string
	OccurredAt  time.Time
}

// Mode selects one of the three mutually exclusive run modes.
type Mode string

const (
	ModeDryRun   Mode = "dry-run"
	ModeExecute  Mode = "execute"
	ModeRollback Mode = "rollback"
)

// OperationContext identifies a single engine invocation. It is threaded
// explicitly into every component call; there is no package-level run state.
type OperationContext struct {
	OperationID string
	Mode        Mode
	Actor       string
	StartedAt   time.Time
}
