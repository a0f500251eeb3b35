package rotation

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(st *fakeStore) *Driver {
	orch, exec, _ := newTestEngine(st)
	d := NewDriver(orch, exec)
	d.newID = func() string { return "3f1b6f0a-4f6e-4c6e-9a6c-2d3a4b5c6d7e" }
	return d
}

func runDriver(t *testing.T, d *Driver, opts Options) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	opts.Stdout = &stdout
	opts.Stderr = &stderr
	opts.Actor = "tester"
	code := d.Run(context.Background(), opts)
	return code, stdout.String(), stderr.String()
}

func TestDriverDryRunExitCodes(t *testing.T) {
	st, _ := seedScenario(t)
	d := newTestDriver(st)

	code, stdout, _ := runDriver(t, d, Options{Mode: ModeDryRun})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Dry run")
	assert.Empty(t, st.rollbacks)
	assert.Empty(t, st.audits)

	// Ceiling breach makes dry run fail too.
	for i := int64(100); i < 100+candidateCeiling+1; i++ {
		st.addAccount(safeAccount(i))
	}
	code, _, stderr := runDriver(t, d, Options{Mode: ModeDryRun})
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "security abort")
}

func TestDriverExecutePrintsOperationID(t *testing.T) {
	st, _ := seedScenario(t)
	d := newTestDriver(st)

	code, stdout, _ := runDriver(t, d, Options{Mode: ModeExecute})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "3f1b6f0a-4f6e-4c6e-9a6c-2d3a4b5c6d7e")
	assert.Contains(t, stdout, "Credentials reset:  1")
	assert.Contains(t, stdout, "Sessions revoked:   2")
}

func TestDriverExecuteFailurePrintsOperationIDAndFailsExit(t *testing.T) {
	st, _ := seedScenario(t)
	st.failInsertAudit = true
	d := newTestDriver(st)

	code, _, stderr := runDriver(t, d, Options{Mode: ModeExecute})
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "3f1b6f0a-4f6e-4c6e-9a6c-2d3a4b5c6d7e")
	assert.Contains(t, stderr, "rolled back")
}

func TestDriverRollbackWithSkipsExitsZero(t *testing.T) {
	st := newFakeStore()
	acct := safeAccount(1)
	acct.PasswordHash = mustHash(t, "rotated")
	st.addAccount(acct)
	st.rollbacks = append(st.rollbacks, rollbackEntryFor(1, nil, false))
	d := newTestDriver(st)

	code, stdout, _ := runDriver(t, d, Options{Mode: ModeRollback, TargetOperationID: rollbackTargetOp})
	assert.Equal(t, 0, code, "skipped-as-unrecoverable is a successful outcome")
	assert.Contains(t, stdout, "Credentials restored: 0")
	assert.Contains(t, stdout, "Skipped (no recoverable hash): 1")
}

func TestDriverRollbackErrors(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	code, _, stderr := runDriver(t, d, Options{Mode: ModeRollback, TargetOperationID: "garbage"})
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "validation failed")

	code, _, stderr = runDriver(t, d, Options{Mode: ModeRollback, TargetOperationID: rollbackTargetOp})
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "not found")

	code, _, stderr = runDriver(t, d, Options{Mode: ModeRollback})
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "requires an operation id")
}

func TestDriverRejectsUnknownMode(t *testing.T) {
	st := newFakeStore()
	d := newTestDriver(st)

	code, _, stderr := runDriver(t, d, Options{Mode: Mode("panic")})
	assert.Equal(t, 1, code)
	assert.True(t, strings.Contains(stderr, "invalid mode"))
}

func TestDriverEndToEndExecuteThenRollback(t *testing.T) {
	st, originalHash := seedScenario(t)
	d := newTestDriver(st)

	code, stdout, _ := runDriver(t, d, Options{Mode: ModeExecute})
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "--rollback")

	code, stdout, _ = runDriver(t, d, Options{
		Mode:              ModeRollback,
		TargetOperationID: "3f1b6f0a-4f6e-4c6e-9a6c-2d3a4b5c6d7e",
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Credentials restored: 1")
	assert.Equal(t, originalHash, st.accounts[1].PasswordHash)
	assert.Len(t, st.audits, 2)
}
