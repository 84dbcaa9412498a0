package actions

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requireProgram(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestExecuteStartsProcess(t *testing.T) {
	requireProgram(t, "true")

	l := NewProcessLauncher()
	defer l.Close()

	require.NoError(t, l.Execute(context.Background(), "true"))
	assert.Eventually(t, func() bool { return l.Running() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestExecuteErrors(t *testing.T) {
	l := NewProcessLauncher()
	defer l.Close()

	tests := []struct {
		name    string
		command string
	}{
		{"empty", "   "},
		{"unterminated quote", `echo "oops`},
		{"missing program", "definitely-not-a-real-program-4242 --flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Execute(context.Background(), tt.command)
			var execErr *ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tt.command == "   ", execErr.Command == "")
		})
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	l := NewProcessLauncher()
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Execute(ctx, "true"), context.Canceled)
}

func TestExecuteNonZeroExitIsNotAnError(t *testing.T) {
	requireProgram(t, "sh")

	l := NewProcessLauncher(WithShell(true))
	defer l.Close()

	require.NoError(t, l.Execute(context.Background(), "exit 3"))
	assert.Eventually(t, func() bool { return l.Running() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestTimeoutKillsProcess(t *testing.T) {
	requireProgram(t, "sleep")

	l := NewProcessLauncher(WithTimeout(50 * time.Millisecond))
	defer l.Close()

	require.NoError(t, l.Execute(context.Background(), "sleep 10"))
	assert.Eventually(t, func() bool { return l.Running() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestCloseKillsRunningProcesses(t *testing.T) {
	requireProgram(t, "sleep")

	l := NewProcessLauncher(WithTimeout(time.Minute))
	require.NoError(t, l.Execute(context.Background(), "sleep 30"))
	assert.Equal(t, 1, l.Running())

	start := time.Now()
	require.NoError(t, l.Close())
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 0, l.Running())

	assert.ErrorIs(t, l.Execute(context.Background(), "true"), ErrClosed)
}

func TestExecCommandVariable(t *testing.T) {
	original := execCommand
	defer func() { execCommand = original }()

	var gotName string
	var gotArgs []string
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return exec.CommandContext(ctx, "true")
	}
	requireProgram(t, "true")

	l := NewProcessLauncher()
	defer l.Close()

	require.NoError(t, l.Execute(context.Background(), `notify-send "Build done" --urgency=low`))
	assert.Equal(t, "notify-send", gotName)
	assert.Equal(t, []string{"Build done", "--urgency=low"}, gotArgs)
}
