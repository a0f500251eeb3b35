package rotation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

// Options configures one Driver invocation.
type Options struct {
	Mode Mode
	// TargetOperationID is required in rollback mode.
	TargetOperationID string
	Actor             string
	Stdout            io.Writer
	Stderr            io.Writer
}

// Driver interprets the three run modes and calls the engine in the right
// order. It is the only component that talks to stdout/stderr.
type Driver struct {
	orch     *Orchestrator
	rollback *RollbackExecutor
	now      func() time.Time
	newID    func() string
}

// NewDriver constructs a Driver.
func NewDriver(orch *Orchestrator, rollback *RollbackExecutor) *Driver {
	return &Driver{
		orch:     orch,
		rollback: rollback,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Run executes the requested mode and returns the process exit code.
func (d *Driver) Run(ctx context.Context, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	op := OperationContext{
		OperationID: d.newID(),
		Mode:        opts.Mode,
		Actor:       opts.Actor,
		StartedAt:   d.now().UTC(),
	}

	switch opts.Mode {
	case ModeDryRun:
		return d.runDry(ctx, op, opts)
	case ModeExecute:
		return d.runExecute(ctx, op, opts)
	case ModeRollback:
		return d.runRollback(ctx, op, opts)
	default:
		fmt.Fprintf(opts.Stderr, "rotate: invalid mode %q (expected dry-run, execute or rollback)\n", opts.Mode)
		return 1
	}
}

func (d *Driver) runDry(ctx context.Context, op OperationContext, opts Options) int {
	summary, err := d.orch.DryRun(ctx, op)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "rotate: dry run failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(opts.Stdout, "Dry run: no changes applied.\n")
	fmt.Fprintf(opts.Stdout, "Candidates in scope:          %d\n", summary.Candidates)
	fmt.Fprintf(opts.Stdout, "Would reset credentials for:  %d\n", summary.WouldReset)
	fmt.Fprintf(opts.Stdout, "  with recoverable rollback:  %d\n", summary.Recoverable)
	fmt.Fprintf(opts.Stdout, "  without recoverable hash:   %d\n", summary.Unrecoverable)
	fmt.Fprintf(opts.Stdout, "Skipped (no tenant):          %d\n", summary.SkippedNoTenant)
	fmt.Fprintf(opts.Stdout, "Execute would also revoke sessions and write one rollback entry per account plus one audit entry.\n")
	return 0
}

func (d *Driver) runExecute(ctx context.Context, op OperationContext, opts Options) int {
	summary, err := d.orch.Execute(ctx, op)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "rotate: execute failed (operation %s): %v\n", op.OperationID, err)
		if errors.Is(err, ErrSecurityAbort) {
			fmt.Fprintln(opts.Stderr, "rotate: no changes were made")
		} else {
			fmt.Fprintln(opts.Stderr, "rotate: transaction rolled back, no changes were made")
		}
		return 1
	}
	fmt.Fprintf(opts.Stdout, "Operation %s completed.\n", summary.OperationID)
	fmt.Fprintf(opts.Stdout, "Credentials reset:  %d\n", summary.Reset)
	fmt.Fprintf(opts.Stdout, "Sessions revoked:   %d\n", summary.SessionsRevoked)
	fmt.Fprintf(opts.Stdout, "Rollback entries:   %d\n", summary.RollbackEntries)
	fmt.Fprintf(opts.Stdout, "Skipped (no tenant): %d\n", summary.SkippedNoTenant)
	fmt.Fprintf(opts.Stdout, "To reverse: rotate --rollback %s\n", summary.OperationID)
	return 0
}

func (d *Driver) runRollback(ctx context.Context, op OperationContext, opts Options) int {
	target := opts.TargetOperationID
	if target == "" {
		fmt.Fprintln(opts.Stderr, "rotate: --rollback requires an operation id")
		return 1
	}
	summary, err := d.rollback.Run(ctx, op, target)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "rotate: rollback of operation %s failed: %v\n", target, err)
		return 1
	}
	fmt.Fprintf(opts.Stdout, "Rollback of operation %s completed.\n", summary.OperationID)
	fmt.Fprintf(opts.Stdout, "Credentials restored: %d\n", summary.Restored)
	fmt.Fprintf(opts.Stdout, "Skipped (no recoverable hash): %d\n", summary.Skipped)
	return 0
}
