package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"
)

// processGone treats zombies as gone: in some containers nothing reaps
// reparented children.
func processGone(pid int) bool {
	if errors.Is(unix.Kill(pid, 0), unix.ESRCH) {
		return true
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return os.IsNotExist(err)
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestSpawnMissingExecutable(t *testing.T) {
	_, err := Spawn(context.Background(), Spec{Executable: "/nonexistent/jseval-sidecar"})
	require.Error(t, err)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "/nonexistent/jseval-sidecar", spawnErr.Executable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSpawnEmptyExecutable(t *testing.T) {
	_, err := Spawn(context.Background(), Spec{})
	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}

func TestSpawnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Spawn(ctx, Spec{Executable: "sleep", Args: []string{"30"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpawnNewProcessGroup(t *testing.T) {
	h, err := Spawn(context.Background(), Spec{Executable: "sleep", Args: []string{"30"}, KillGrace: time.Second})
	require.NoError(t, err)
	defer h.Terminate()

	assert.Equal(t, h.PID, h.PGID)
	assert.NotEqual(t, unix.Getpgrp(), h.PGID)
	assert.True(t, h.Alive())
}

func TestTerminate(t *testing.T) {
	h, err := Spawn(context.Background(), Spec{Executable: "sleep", Args: []string{"30"}, KillGrace: time.Second})
	require.NoError(t, err)

	h.Terminate()

	assert.False(t, h.Alive())
	assert.Error(t, h.ExitErr())
	assert.True(t, processGone(h.PID))

	// Idempotent.
	h.Terminate()
}

func TestTerminateAfterExit(t *testing.T) {
	h, err := Spawn(context.Background(), Spec{Executable: "true", KillGrace: time.Second})
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	assert.NoError(t, h.ExitErr())

	start := time.Now()
	h.Terminate()
	assert.Less(t, time.Since(start), time.Second)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	h, err := Spawn(context.Background(), Spec{
		Executable: "sh",
		Args:       []string{"-c", `trap "" INT; sleep 30`},
		KillGrace:  200 * time.Millisecond,
	})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	h.Terminate()

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, h.Alive())
	assert.True(t, processGone(h.PID))
}

func TestTerminateKillsDescendants(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	h, err := Spawn(context.Background(), Spec{
		Executable: "sh",
		Args:       []string{"-c", `sleep 30 & echo $! > "$1"; wait`, "sh", pidFile},
		KillGrace:  200 * time.Millisecond,
	})
	require.NoError(t, err)

	var childPID int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		childPID, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	h.Terminate()

	assert.Eventually(t, func() bool { return processGone(childPID) }, 2*time.Second, 20*time.Millisecond)
}

func TestOutputIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h, err := Spawn(context.Background(), Spec{
		Executable: "sh",
		Args:       []string{"-c", "echo hello; echo oops >&2"},
		Logger:     zap.New(core),
		KillGrace:  time.Second,
	})
	require.NoError(t, err)
	<-h.Done()
	h.Terminate()

	entries := logs.FilterMessage("Sidecar output").All()
	require.Len(t, entries, 2)

	lines := map[string]string{}
	for _, e := range entries {
		fields := e.ContextMap()
		lines[fields["stream"].(string)] = fields["line"].(string)
	}
	assert.Equal(t, "hello", lines["stdout"])
	assert.Equal(t, "oops", lines["stderr"])
}

func TestEnvIsAppended(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h, err := Spawn(context.Background(), Spec{
		Executable: "sh",
		Args:       []string{"-c", `echo "$JSEVAL_PROCESS_TEST"`},
		Env:        []string{"JSEVAL_PROCESS_TEST=marker"},
		Logger:     zap.New(core),
	})
	require.NoError(t, err)
	<-h.Done()
	h.Terminate()

	entries := logs.FilterField(zap.String("line", "marker")).All()
	assert.Len(t, entries, 1)
}
