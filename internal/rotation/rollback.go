package rotation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// RollbackSummary reports the outcome of one rollback operation. Skipped
// accounts are an expected outcome, not a failure: entries captured without
// a recoverable hash cannot be restored and their accounts are left exactly
// as they are.
type RollbackSummary struct {
	OperationID string
	Restored    int
	Skipped     int
}

// RollbackExecutor reverses a prior execute operation from its stored
// rollback entries: Requested -> Validated -> Applying -> Completed/Aborted.
// Validation failures surface before any transaction opens; failures inside
// the transaction revert everything including the rollback's audit entry.
type RollbackExecutor struct {
	uow    UnitOfWork
	codec  *HashCodec
	audit  *AuditWriter
	logger *slog.Logger
}

// NewRollbackExecutor constructs a RollbackExecutor.
func NewRollbackExecutor(uow UnitOfWork, codec *HashCodec, audit *AuditWriter, logger *slog.Logger) *RollbackExecutor {
	return &RollbackExecutor{uow: uow, codec: codec, audit: audit, logger: logger}
}

// Run validates and applies the rollback of targetOperationID.
func (x *RollbackExecutor) Run(ctx context.Context, op OperationContext, targetOperationID string) (*RollbackSummary, error) {
	if _, err := uuid.Parse(targetOperationID); err != nil {
		return nil, fmt.Errorf("%w: operation id %q is not a valid identifier", ErrValidation, targetOperationID)
	}

	entries, err := x.uow.Store().ListRollbackEntries(ctx, targetOperationID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no rollback data for operation %s (never ran, or expired)", ErrNotFound, targetOperationID)
	}
	for _, entry := range entries {
		if entry.UserID == 0 || entry.TenantID == 0 {
			return nil, fmt.Errorf("%w: rollback entry for operation %s is missing its account or tenant reference", ErrIntegrity, targetOperationID)
		}
	}

	userIDs := make([]int64, len(entries))
	for i, entry := range entries {
		userIDs[i] = entry.UserID
	}
	existing, err := x.uow.Store().CountAccounts(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if existing != int64(len(entries)) {
		return nil, fmt.Errorf("%w: operation %s references %d accounts but %d exist; refusing partial rollback",
			ErrNotFound, targetOperationID, len(entries), existing)
	}

	summary := &RollbackSummary{OperationID: targetOperationID}
	err = x.uow.InTx(ctx, func(st Store) error {
		var restoredIDs, skippedIDs []int64
		for _, entry := range entries {
			if entry.Meta.HasRecoverableHash && entry.PreviousHash != nil && x.codec.IsHashFormat(*entry.PreviousHash) {
				if err := st.RestoreCredential(ctx, entry.UserID, *entry.PreviousHash); err != nil {
					return err
				}
				restoredIDs = append(restoredIDs, entry.UserID)
				continue
			}
			if x.logger != nil {
				x.logger.Warn("rollback entry has no recoverable hash, account skipped",
					slog.String("operation_id", targetOperationID),
					slog.Int64("user_id", entry.UserID))
			}
			skippedIDs = append(skippedIDs, entry.UserID)
		}

		summary.Restored = len(restoredIDs)
		summary.Skipped = len(skippedIDs)

		meta := RollbackAuditMeta{
			SourceOperationID: targetOperationID,
			RestoredCount:     len(restoredIDs),
			SkippedCount:      len(skippedIDs),
			RestoredUserIDs:   restoredIDs,
			SkippedUserIDs:    skippedIDs,
		}
		return x.audit.RecordRollback(ctx, st, op, meta)
	})
	if err != nil {
		return nil, &TxError{OperationID: targetOperationID, Err: err}
	}

	if x.logger != nil {
		x.logger.Info("rollback completed",
			slog.String("operation_id", targetOperationID),
			slog.Int("restored", summary.Restored),
			slog.Int("skipped", summary.Skipped))
	}
	return summary, nil
}
