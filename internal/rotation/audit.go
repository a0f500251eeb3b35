package rotation

import (
	"context"
)

// AuditWriter appends one secret-free audit entry per top-level operation.
// The platform tenant the entry is attributed to is resolved at write time,
// and the write happens on the same transaction-bound store as the mutation
// it describes, so a failed transaction leaves no audit trace.
type AuditWriter struct{}

// NewAuditWriter constructs an AuditWriter.
func NewAuditWriter() *AuditWriter {
	return &AuditWriter{}
}

// RecordExecution writes the single audit row for an execute operation.
func (w *AuditWriter) RecordExecution(ctx context.Context, st Store, op OperationContext, meta ExecuteAuditMeta) error {
	meta.SchemaVersion = metaSchemaVersion
	meta.Script = scriptName
	meta.ScriptVersion = scriptVersion
	raw, err := encodeAuditMeta(meta)
	if err != nil {
		return err
	}
	return w.record(ctx, st, op, AuditActionExecute, op.OperationID, raw)
}

// RecordRollback writes the single audit row for a rollback operation. The
// entry references the original execute operation id.
func (w *AuditWriter) RecordRollback(ctx context.Context, st Store, op OperationContext, meta RollbackAuditMeta) error {
	meta.SchemaVersion = metaSchemaVersion
	meta.Script = scriptName
	meta.ScriptVersion = scriptVersion
	raw, err := encodeAuditMeta(meta)
	if err != nil {
		return err
	}
	return w.record(ctx, st, op, AuditActionRollback, meta.SourceOperationID, raw)
}

func (w *AuditWriter) record(ctx context.Context, st Store, op OperationContext, action AuditAction, operationID string, raw []byte) error {
	tenantID, err := st.PlatformTenantID(ctx)
	if err != nil {
		return err
	}
	return st.InsertAuditEntry(ctx, AuditEntry{
		TenantID:    tenantID,
		Action:      action,
		OperationID: operationID,
		Meta:        raw,
		Actor:       op.Actor,
		OccurredAt:  op.StartedAt,
	})
}
