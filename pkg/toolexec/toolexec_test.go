package toolexec_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)) //nolint:gosec // test script must be executable.

	return path
}

func TestRunCapturesStreams(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "lint", `echo "out:$1"
echo "err" >&2
exit 3
`)

	out, err := toolexec.NewRunner().Run(context.Background(), toolexec.Command{Name: script, Args: []string{"a.py"}})
	require.NoError(t, err)

	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "out:a.py\n", string(out.Stdout))
	assert.Contains(t, out.Text(), "out:a.py")
	assert.Contains(t, out.Text(), "err")
	assert.False(t, out.Truncated)
}

func TestRunDirAndEnv(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeScript(t, "envtool", `pwd
echo "$CODEREPORT_TEST_VALUE"
`)

	out, err := toolexec.NewRunner().Run(context.Background(), toolexec.Command{
		Name: script,
		Dir:  dir,
		Env:  []string{"CODEREPORT_TEST_VALUE=hello"},
	})
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out.Stdout)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, resolved, lines[0])
	assert.Equal(t, "hello", lines[1])
}

func TestRunToolNotFound(t *testing.T) {
	t.Parallel()

	_, err := toolexec.NewRunner().Run(context.Background(), toolexec.Command{Name: "codereport-no-such-tool"})
	require.ErrorIs(t, err, toolexec.ErrToolNotFound)

	assert.False(t, toolexec.Available("codereport-no-such-tool"))
	assert.True(t, toolexec.Available("sh"))
}

func TestRunEmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := toolexec.NewRunner().Run(context.Background(), toolexec.Command{})
	require.ErrorIs(t, err, toolexec.ErrEmptyCommand)
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "slow", "exec sleep 5\n")

	runner := toolexec.NewRunner(toolexec.WithTimeout(100 * time.Millisecond))

	start := time.Now()
	_, err := runner.Run(context.Background(), toolexec.Command{Name: script})
	require.ErrorIs(t, err, toolexec.ErrToolTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRunParentCancelled(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "slow", "exec sleep 5\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := toolexec.NewRunner().Run(ctx, toolexec.Command{Name: script})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, toolexec.ErrToolTimeout)
}

func TestRunTruncatesOutput(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "noisy", `i=0
while [ $i -lt 200 ]; do
  echo "line $i with some padding to make it longer"
  i=$((i+1))
done
`)

	runner := toolexec.NewRunner(toolexec.WithMaxOutput(64))

	out, err := runner.Run(context.Background(), toolexec.Command{Name: script})
	require.NoError(t, err)

	assert.True(t, out.Truncated)
	assert.Contains(t, out.Text(), "[output truncated]")
	assert.Less(t, len(out.Combined), 200)
}

func TestCommandString(t *testing.T) {
	t.Parallel()

	cmd := toolexec.Command{Name: "radon", Args: []string{"cc", "-s", "a.py"}}
	assert.Equal(t, "radon cc -s a.py", cmd.String())
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "lint", "echo ok\n")

	runner := toolexec.NewRunner(toolexec.WithLogger(nil), toolexec.WithTracer(nil), toolexec.WithMetrics(nil))

	var (
		out toolexec.Output
		err error
	)

	require.NotPanics(t, func() {
		out, err = runner.Run(context.Background(), toolexec.Command{Name: script})
	})
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(out.Stdout))
}
