package rotation

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// metaSchemaVersion versions the JSON metadata written to rollback and audit
// rows so future readers can decode historical entries.
const metaSchemaVersion = 1

const (
	scriptName    = "bulk-credential-rotation"
	scriptVersion = "1.4.0"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RollbackMeta is the typed metadata stored on each rollback entry.
// HasRecoverableHash, not hash nullability, is the authoritative signal read
// back during rollback.
type RollbackMeta struct {
	SchemaVersion      int    `json:"schema_version" validate:"gte=1"`
	HasRecoverableHash bool   `json:"has_recoverable_hash"`
	Role               Role   `json:"role" validate:"required"`
	Email              string `json:"email" validate:"required"`
	Script             string `json:"script" validate:"required"`
	ScriptVersion      string `json:"script_version"`
	BatchSize          int    `json:"batch_size" validate:"gte=0"`
}

// EncodeRollbackMeta serialises meta for storage.
func EncodeRollbackMeta(meta RollbackMeta) ([]byte, error) {
	return json.Marshal(meta)
}

// DecodeRollbackMeta deserialises and structurally validates stored metadata.
// Failures are integrity errors: the rollback store is never mutated after
// write, so a malformed row means the data cannot be trusted.
func DecodeRollbackMeta(raw []byte) (RollbackMeta, error) {
	var meta RollbackMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return RollbackMeta{}, fmt.Errorf("%w: decode rollback meta: %v", ErrIntegrity, err)
	}
	if err := validate.Struct(meta); err != nil {
		return RollbackMeta{}, fmt.Errorf("%w: rollback meta: %v", ErrIntegrity, err)
	}
	return meta, nil
}

// AuditAccount is the non-secret account snapshot embedded in audit payloads.
type AuditAccount struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	TenantID int64  `json:"tenant_id"`
}

// ExecuteAuditMeta summarises one execute operation. It must be
// reconstructible from first principles and carry zero secret material.
type ExecuteAuditMeta struct {
	SchemaVersion    int            `json:"schema_version"`
	Mode             Mode           `json:"mode"`
	ResetCount       int            `json:"reset_count"`
	SkippedNoTenant  int            `json:"skipped_no_tenant"`
	SessionsRevoked  int            `json:"sessions_revoked"`
	RollbackEntries  int            `json:"rollback_entries"`
	Accounts         []AuditAccount `json:"accounts"`
	SecurityFeatures []string       `json:"security_features"`
	Script           string         `json:"script"`
	ScriptVersion    string         `json:"script_version"`
}

// RollbackAuditMeta summarises one rollback operation against a prior
// execute operation.
type RollbackAuditMeta struct {
	SchemaVersion     int     `json:"schema_version"`
	SourceOperationID string  `json:"source_operation_id"`
	RestoredCount     int     `json:"restored_count"`
	SkippedCount      int     `json:"skipped_count"`
	RestoredUserIDs   []int64 `json:"restored_user_ids"`
	SkippedUserIDs    []int64 `json:"skipped_user_ids"`
	Script            string  `json:"script"`
	ScriptVersion     string  `json:"script_version"`
}

func encodeAuditMeta(meta any) ([]byte, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("rotation: encode audit meta: %w", err)
	}
	return raw, nil
}
