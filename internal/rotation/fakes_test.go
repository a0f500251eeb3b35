package rotation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory Store used across the package tests. Failure
// flags let tests break a specific step inside the unit of work.
type fakeStore struct {
	accounts         map[int64]*Account
	sessions         map[string]int64 // session id -> user id
	rollbacks        []RollbackEntry
	audits           []AuditEntry
	platformTenantID int64

	failInsertRollback bool
	failUpdate         bool
	failDeleteSessions bool
	failInsertAudit    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:         make(map[int64]*Account),
		sessions:         make(map[string]int64),
		platformTenantID: 1,
	}
}

func (s *fakeStore) addAccount(a Account) {
	cp := a
	s.accounts[a.ID] = &cp
}

func (s *fakeStore) addSession(id string, userID int64) {
	s.sessions[id] = userID
}

func (s *fakeStore) clone() *fakeStore {
	cp := newFakeStore()
	cp.platformTenantID = s.platformTenantID
	cp.failInsertRollback = s.failInsertRollback
	cp.failUpdate = s.failUpdate
	cp.failDeleteSessions = s.failDeleteSessions
	cp.failInsertAudit = s.failInsertAudit
	for id, a := range s.accounts {
		acct := *a
		if a.TenantID != nil {
			tid := *a.TenantID
			acct.TenantID = &tid
		}
		cp.accounts[id] = &acct
	}
	for id, uid := range s.sessions {
		cp.sessions[id] = uid
	}
	cp.rollbacks = append([]RollbackEntry(nil), s.rollbacks...)
	cp.audits = append([]AuditEntry(nil), s.audits...)
	return cp
}

func (s *fakeStore) ListActiveAccounts(ctx context.Context) ([]Account, error) {
	ids := make([]int64, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []Account
	for _, id := range ids {
		if s.accounts[id].IsActive {
			out = append(out, *s.accounts[id])
		}
	}
	return out, nil
}

func (s *fakeStore) PlatformTenantID(ctx context.Context) (int64, error) {
	if s.platformTenantID == 0 {
		return 0, fmt.Errorf("%w: platform tenant", ErrNotFound)
	}
	return s.platformTenantID, nil
}

func (s *fakeStore) InsertRollbackEntry(ctx context.Context, entry RollbackEntry) error {
	if s.failInsertRollback {
		return errInjected
	}
	s.rollbacks = append(s.rollbacks, entry)
	return nil
}

func (s *fakeStore) ListRollbackEntries(ctx context.Context, operationID string) ([]RollbackEntry, error) {
	var out []RollbackEntry
	for _, entry := range s.rollbacks {
		if entry.OperationID == operationID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *fakeStore) UpdateCredentials(ctx context.Context, userID int64, newHash string) error {
	if s.failUpdate {
		return errInjected
	}
	acct, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("update credentials for user %d: 0 rows affected", userID)
	}
	acct.PasswordHash = newHash
	acct.MustChangePassword = true
	acct.IsTemporaryPassword = true
	return nil
}

func (s *fakeStore) RestoreCredential(ctx context.Context, userID int64, previousHash string) error {
	acct, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("restore credentials for user %d: 0 rows affected", userID)
	}
	acct.PasswordHash = previousHash
	acct.MustChangePassword = false
	acct.IsTemporaryPassword = false
	return nil
}

func (s *fakeStore) DeleteSessionsForAccounts(ctx context.Context, userIDs []int64) ([]string, error) {
	if s.failDeleteSessions {
		return nil, errInjected
	}
	wanted := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}
	var ids []string
	for sid, uid := range s.sessions {
		if _, ok := wanted[uid]; ok {
			ids = append(ids, sid)
		}
	}
	sort.Strings(ids)
	for _, sid := range ids {
		delete(s.sessions, sid)
	}
	return ids, nil
}

func (s *fakeStore) CountAccounts(ctx context.Context, userIDs []int64) (int64, error) {
	seen := make(map[int64]struct{}, len(userIDs))
	var count int64
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := s.accounts[id]; ok {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) InsertAuditEntry(ctx context.Context, entry AuditEntry) error {
	if s.failInsertAudit {
		return errInjected
	}
	s.audits = append(s.audits, entry)
	return nil
}

var _ Store = (*fakeStore)(nil)

// fakeUOW mimics transactional semantics: if fn fails, the store is restored
// from a pre-transaction snapshot so tests can assert nothing leaked.
type fakeUOW struct {
	st *fakeStore
}

func (u *fakeUOW) Store() Store { return u.st }

func (u *fakeUOW) InTx(ctx context.Context, fn func(Store) error) error {
	snapshot := u.st.clone()
	if err := fn(u.st); err != nil {
		*u.st = *snapshot
		return err
	}
	return nil
}

var _ UnitOfWork = (*fakeUOW)(nil)

func testOp(mode Mode) OperationContext {
	return OperationContext{
		OperationID: "3f1b6f0a-4f6e-4c6e-9a6c-2d3a4b5c6d7e",
		Mode:        mode,
		Actor:       "tester",
		StartedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func int64ptr(v int64) *int64 { return &v }
