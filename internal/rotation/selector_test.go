package rotation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func safeAccount(id int64) Account {
	return Account{
		ID:              id,
		TenantID:        int64ptr(10),
		TenantSubdomain: "test",
		Role:            RolePatientPortal,
		Email:           fmt.Sprintf("user%d@test.com", id),
		IsActive:        true,
	}
}

func TestSelectKeepsOnlySafelyScopedAccounts(t *testing.T) {
	selector := NewSelector(nil)

	accounts := []Account{
		safeAccount(1),
		func() Account { // privileged role, everything else safe
			a := safeAccount(2)
			a.Role = RoleTenantAdmin
			return a
		}(),
		func() Account { // protected identity
			a := safeAccount(3)
			a.Email = "admin@navimedi.com"
			return a
		}(),
		func() Account { // production-looking email domain
			a := safeAccount(4)
			a.Email = "user4@navimedi.com"
			return a
		}(),
		func() Account { // lookalike domain must not match
			a := safeAccount(5)
			a.Email = "user5@evil-test.com"
			return a
		}(),
		func() Account { // production tenant
			a := safeAccount(6)
			a.TenantSubdomain = "production"
			return a
		}(),
		func() Account { // no tenant at all
			a := safeAccount(7)
			a.TenantID = nil
			a.TenantSubdomain = ""
			return a
		}(),
		func() Account { // unprivileged but not on the safe allowlist
			a := safeAccount(8)
			a.Role = Role("lab_tech")
			return a
		}(),
	}

	got, err := selector.Select(accounts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestSelectNeverEmitsPrivilegedOrProtected(t *testing.T) {
	selector := NewSelector(nil)

	// Privileged and protected accounts dressed up to pass every other
	// filter must still be excluded.
	var accounts []Account
	for i, role := range []Role{RoleSuperAdmin, RoleTenantAdmin, RoleDirector, RoleClinicianInCharge} {
		a := safeAccount(int64(100 + i))
		a.Role = role
		accounts = append(accounts, a)
	}
	protected := safeAccount(200)
	protected.Email = "root@navimedi.com"
	accounts = append(accounts, protected)

	got, err := selector.Select(accounts)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectDomainMatchingIsCaseInsensitiveButAnchored(t *testing.T) {
	selector := NewSelector(nil)

	upper := safeAccount(1)
	upper.Email = "User1@TEST.COM"
	upperTenant := safeAccount(2)
	upperTenant.TenantSubdomain = "DEMO"

	got, err := selector.Select([]Account{upper, upperTenant})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	subdomainSpoof := safeAccount(3)
	subdomainSpoof.Email = "user3@test.com.evil.net"
	got, err = selector.Select([]Account{subdomainSpoof})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectAbortsAboveCeiling(t *testing.T) {
	selector := NewSelector(nil)

	var accounts []Account
	for i := int64(1); i <= candidateCeiling+1; i++ {
		accounts = append(accounts, safeAccount(i))
	}

	_, err := selector.Select(accounts)
	require.ErrorIs(t, err, ErrSecurityAbort)

	// Exactly at the ceiling is still permitted.
	got, err := selector.Select(accounts[:candidateCeiling])
	require.NoError(t, err)
	assert.Len(t, got, candidateCeiling)
}
