package rotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store defines the persistence operations the engine needs. Mutating
// methods are expected to run against a transaction-bound store obtained
// through a UnitOfWork.
type Store interface {
	ListActiveAccounts(ctx context.Context) ([]Account, error)
	PlatformTenantID(ctx context.Context) (int64, error)
	InsertRollbackEntry(ctx context.Context, entry RollbackEntry) error
	ListRollbackEntries(ctx context.Context, operationID string) ([]RollbackEntry, error)
	UpdateCredentials(ctx context.Context, userID int64, newHash string) error
	RestoreCredential(ctx context.Context, userID int64, previousHash string) error
	DeleteSessionsForAccounts(ctx context.Context, userIDs []int64) ([]string, error)
	CountAccounts(ctx context.Context, userIDs []int64) (int64, error)
	InsertAuditEntry(ctx context.Context, entry AuditEntry) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	q querier
}

// NewPGStore constructs a PGStore over a pool or transaction.
func NewPGStore(q querier) *PGStore {
	return &PGStore{q: q}
}

// ListActiveAccounts returns every active account joined with its tenant.
func (s *PGStore) ListActiveAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.q.Query(ctx, `
		SELECT u.id, u.tenant_id, u.role, u.email,
		       COALESCE(u.password_hash, ''),
		       u.must_change_password, u.is_temporary_password, u.is_active,
		       COALESCE(t.subdomain, ''),
		       u.created_at, u.updated_at
		FROM users u
		LEFT JOIN tenants t ON t.id = u.tenant_id
		WHERE u.is_active
		ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("rotation: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var role string
		if err := rows.Scan(&a.ID, &a.TenantID, &role, &a.Email, &a.PasswordHash,
			&a.MustChangePassword, &a.IsTemporaryPassword, &a.IsActive,
			&a.TenantSubdomain, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("rotation: scan account: %w", err)
		}
		a.Role = Role(role)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rotation: list accounts: %w", err)
	}
	return accounts, nil
}

// PlatformTenantID resolves the distinguished platform tenant at call time.
// It is never hard-coded; environments differ.
func (s *PGStore) PlatformTenantID(ctx context.Context) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`SELECT id FROM tenants WHERE tenant_type = $1 LIMIT 1`,
		string(TenantTypePlatform)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: platform tenant", ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("rotation: resolve platform tenant: %w", err)
	}
	return id, nil
}

// InsertRollbackEntry persists one rollback entry.
func (s *PGStore) InsertRollbackEntry(ctx context.Context, entry RollbackEntry) error {
	meta, err := EncodeRollbackMeta(entry.Meta)
	if err != nil {
		return fmt.Errorf("rotation: encode rollback meta: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO credential_rollbacks
			(operation_id, user_id, tenant_id, previous_hash, meta, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.OperationID, entry.UserID, entry.TenantID, entry.PreviousHash,
		meta, entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("rotation: insert rollback entry: %w", err)
	}
	return nil
}

// ListRollbackEntries loads every rollback entry for an operation.
func (s *PGStore) ListRollbackEntries(ctx context.Context, operationID string) ([]RollbackEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT operation_id, user_id, tenant_id, previous_hash, meta, created_by, created_at
		FROM credential_rollbacks
		WHERE operation_id = $1
		ORDER BY user_id`, operationID)
	if err != nil {
		return nil, fmt.Errorf("rotation: list rollback entries: %w", err)
	}
	defer rows.Close()

	var entries []RollbackEntry
	for rows.Next() {
		var entry RollbackEntry
		var rawMeta []byte
		if err := rows.Scan(&entry.OperationID, &entry.UserID, &entry.TenantID,
			&entry.PreviousHash, &rawMeta, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("rotation: scan rollback entry: %w", err)
		}
		meta, err := DecodeRollbackMeta(rawMeta)
		if err != nil {
			return nil, err
		}
		entry.Meta = meta
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rotation: list rollback entries: %w", err)
	}
	return entries, nil
}

// UpdateCredentials sets the new hash and flags the credential as temporary.
// The UPDATE row-locks the account for the remainder of the transaction.
func (s *PGStore) UpdateCredentials(ctx context.Context, userID int64, newHash string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE users
		SET password_hash = $2,
		    must_change_password = TRUE,
		    is_temporary_password = TRUE,
		    updated_at = NOW()
		WHERE id = $1`, userID, newHash)
	if err != nil {
		return fmt.Errorf("rotation: update credentials for user %d: %w", userID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("rotation: update credentials for user %d: %d rows affected", userID, tag.RowsAffected())
	}
	return nil
}

// RestoreCredential writes back a previously captured hash and clears the
// temporary flags.
func (s *PGStore) RestoreCredential(ctx context.Context, userID int64, previousHash string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE users
		SET password_hash = $2,
		    must_change_password = FALSE,
		    is_temporary_password = FALSE,
		    updated_at = NOW()
		WHERE id = $1`, userID, previousHash)
	if err != nil {
		return fmt.Errorf("rotation: restore credentials for user %d: %w", userID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("rotation: restore credentials for user %d: %d rows affected", userID, tag.RowsAffected())
	}
	return nil
}

// DeleteSessionsForAccounts removes every session whose payload references
// one of the accounts. Sessions key their account by a field inside the JSON
// payload rather than a foreign key, and RETURNING yields the exact set
// removed rather than an estimate.
func (s *PGStore) DeleteSessionsForAccounts(ctx context.Context, userIDs []int64) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `
		DELETE FROM sessions
		WHERE (payload->>'user_id')::bigint = ANY($1)
		RETURNING id`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("rotation: delete sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rotation: scan deleted session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rotation: delete sessions: %w", err)
	}
	return ids, nil
}

// CountAccounts returns how many of the given ids currently exist.
func (s *PGStore) CountAccounts(ctx context.Context, userIDs []int64) (int64, error) {
	var count int64
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ANY($1)`, userIDs).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("rotation: count accounts: %w", err)
	}
	return count, nil
}

// InsertAuditEntry appends one audit row.
func (s *PGStore) InsertAuditEntry(ctx context.Context, entry AuditEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO audit_logs (tenant_id, action, entity, entity_id, meta, actor, occurred_at)
		VALUES ($1, $2, 'credentials', $3, $4, $5, COALESCE($6, NOW()))`,
		entry.TenantID, string(entry.Action), entry.OperationID, entry.Meta,
		entry.Actor, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("rotation: insert audit entry: %w", err)
	}
	return nil
}

var _ Store = (*PGStore)(nil)
