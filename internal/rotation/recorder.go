package rotation

import (
	"log/slog"
)

// RecordSet is the Recorder's output: one rollback entry per included
// candidate, plus the candidates excluded for lacking a tenant reference.
// Excluded candidates must not be rotated either; an account whose secret
// changed without a rollback entry would be irreversible.
type RecordSet struct {
	Entries  []RollbackEntry
	Included []Account
	Skipped  []Account
}

// Recorder derives storable rollback entries from the candidate list. It is
// pure with respect to storage; the orchestrator persists the result.
type Recorder struct {
	codec  *HashCodec
	logger *slog.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(codec *HashCodec, logger *slog.Logger) *Recorder {
	return &Recorder{codec: codec, logger: logger}
}

// Derive builds the rollback entry for every candidate:
//
//   - current hash already in hash format: copied verbatim, recoverable
//   - current value present but not hash-shaped (legacy plaintext): re-hashed
//     before storage so the rollback store never holds plaintext, recoverable
//   - no current secret: nil hash, not recoverable
//
// Candidates without a resolvable tenant cannot satisfy the entry's tenant
// reference; they are reported as skipped rather than failing the batch.
func (r *Recorder) Derive(op OperationContext, candidates []Account) (RecordSet, error) {
	set := RecordSet{}
	batchSize := len(candidates)
	for _, acct := range candidates {
		if acct.TenantID == nil {
			if r.logger != nil {
				r.logger.Warn("candidate has no tenant, excluded from rotation",
					slog.Int64("user_id", acct.ID))
			}
			set.Skipped = append(set.Skipped, acct)
			continue
		}

		entry := RollbackEntry{
			OperationID: op.OperationID,
			UserID:      acct.ID,
			TenantID:    *acct.TenantID,
			CreatedBy:   op.Actor,
			CreatedAt:   op.StartedAt,
			Meta: RollbackMeta{
				SchemaVersion: metaSchemaVersion,
				Role:          acct.Role,
				Email:         acct.Email,
				Script:        scriptName,
				ScriptVersion: scriptVersion,
				BatchSize:     batchSize,
			},
		}

		switch {
		case acct.PasswordHash == "":
			entry.PreviousHash = nil
			entry.Meta.HasRecoverableHash = false
		case r.codec.IsHashFormat(acct.PasswordHash):
			prev := acct.PasswordHash
			entry.PreviousHash = &prev
			entry.Meta.HasRecoverableHash = true
		default:
			rehashed, err := r.codec.Hash(acct.PasswordHash)
			if err != nil {
				return RecordSet{}, err
			}
			entry.PreviousHash = &rehashed
			entry.Meta.HasRecoverableHash = true
		}

		set.Entries = append(set.Entries, entry)
		set.Included = append(set.Included, acct)
	}
	return set, nil
}
