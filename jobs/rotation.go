package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/navimedi/credrotate/internal/rotation"
)

const (
	// QueueRotation is the dedicated queue for rotation tasks. It runs with
	// concurrency 1; two rotation runs must never overlap.
	QueueRotation = "rotation"
	// TaskTypeCredentialRotation is the task type for scheduled rotation.
	TaskTypeCredentialRotation = "credentials:rotate"
)

// CredentialRotationPayload describes a scheduled rotation request. Only
// dry-run and execute are valid; rollback is operator-only.
type CredentialRotationPayload struct {
	Mode  string `json:"mode"`
	Actor string `json:"actor"`
}

// NewCredentialRotationTask constructs an Asynq task.
func NewCredentialRotationTask(payload CredentialRotationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCredentialRotation, data), nil
}

// CredentialRotationJob processes TaskTypeCredentialRotation tasks.
type CredentialRotationJob struct {
	orch   *rotation.Orchestrator
	logger *slog.Logger
}

// NewCredentialRotationJob constructs the job handler.
func NewCredentialRotationJob(orch *rotation.Orchestrator, logger *slog.Logger) *CredentialRotationJob {
	return &CredentialRotationJob{orch: orch, logger: logger}
}

// Handle runs the requested rotation mode. A security abort is terminal,
// not retryable: retrying cannot shrink the candidate set.
func (j *CredentialRotationJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload CredentialRotationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	actor := payload.Actor
	if actor == "" {
		actor = "credential-rotation-worker"
	}
	op := rotation.OperationContext{
		OperationID: uuid.NewString(),
		Mode:        rotation.Mode(payload.Mode),
		Actor:       actor,
		StartedAt:   time.Now().UTC(),
	}

	switch op.Mode {
	case rotation.ModeDryRun:
		summary, err := j.orch.DryRun(ctx, op)
		if err != nil {
			return j.classify(err)
		}
		j.logger.Info("scheduled rotation dry run",
			slog.String("operation_id", summary.OperationID),
			slog.Int("candidates", summary.Candidates),
			slog.Int("would_reset", summary.WouldReset))
		return nil
	case rotation.ModeExecute:
		summary, err := j.orch.Execute(ctx, op)
		if err != nil {
			return j.classify(err)
		}
		j.logger.Info("scheduled rotation executed",
			slog.String("operation_id", summary.OperationID),
			slog.Int("reset", summary.Reset),
			slog.Int("sessions_revoked", summary.SessionsRevoked))
		return nil
	default:
		j.logger.Warn("rotation task with unsupported mode dropped", slog.String("mode", payload.Mode))
		return asynq.SkipRetry
	}
}

func (j *CredentialRotationJob) classify(err error) error {
	if errors.Is(err, rotation.ErrSecurityAbort) {
		j.logger.Error("scheduled rotation aborted by safety ceiling", slog.Any("error", err))
		return asynq.SkipRetry
	}
	return err
}
