package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/require"

	"github.com/rbright/inhibitor/internal/bootstrap"
	"github.com/rbright/inhibitor/internal/doctor"
	"github.com/rbright/inhibitor/internal/inhibit"
	"github.com/rbright/inhibitor/internal/ipc"
)

type runnerPaths struct {
	runtimeDir string
	configPath string
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	t.Cleanup(xdg.Reload)
	root := t.TempDir()
	runtimeDir := filepath.Join(root, "run")
	require.NoError(t, os.MkdirAll(runtimeDir, 0o700))
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	xdg.Reload()

	configPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
client:
  reply_timeout: 1s
  startup_timeout: 500ms
`), 0o600))

	return runnerPaths{runtimeDir: runtimeDir, configPath: configPath}
}

type fakeManager struct {
	mu     sync.Mutex
	calls  int
	closed int
}

func (m *fakeManager) Inhibit(context.Context, inhibit.Request) (inhibit.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return closerFunc(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed++
		return nil
	}), nil
}

func (m *fakeManager) Close() error { return nil }

func (m *fakeManager) inhibitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// inProcessDaemon returns a spawner that starts the daemon command on a
// goroutine against manager. The daemon stops at test cleanup.
func inProcessDaemon(t *testing.T, manager *fakeManager, configPath string) (bootstrap.Spawner, *int) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu      sync.Mutex
		spawns  int
		running sync.WaitGroup
	)
	t.Cleanup(func() {
		cancel()
		running.Wait()
	})

	spawner := bootstrap.SpawnFunc(func() error {
		mu.Lock()
		spawns++
		mu.Unlock()

		daemonRunner := Runner{
			Stdout:                &bytes.Buffer{},
			Stderr:                &bytes.Buffer{},
			ConnectSessionManager: func() (SessionManager, error) { return manager, nil },
		}
		running.Add(1)
		go func() {
			defer running.Done()
			daemonRunner.Execute(ctx, []string{"--config", configPath, "daemon"})
		}()
		return nil
	})
	return spawner, &spawns
}

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "inhibitor")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "error:")
	require.Contains(t, stderr.String(), "Usage:")
	require.Empty(t, stdout.String())
}

func TestRunnerInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte("bogus_key: 1\n"), 0o600))

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "query"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerEndToEndStateSequence(t *testing.T) {
	paths := setupRunnerEnv(t)
	manager := &fakeManager{}
	spawner, spawns := inProcessDaemon(t, manager, paths.configPath)

	steps := []struct {
		command string
		want    string
	}{
		{"on", "ON\n"},
		{"query", "ON\n"},
		{"off", "OFF\n"},
		{"query", "OFF\n"},
	}
	for _, step := range steps {
		var stdout, stderr bytes.Buffer
		runner := Runner{Stdout: &stdout, Stderr: &stderr, Spawner: spawner}

		exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, step.command})
		require.Equal(t, 0, exitCode, "%s: %s", step.command, stderr.String())
		require.Equal(t, step.want, stdout.String(), step.command)
	}

	require.Equal(t, 1, manager.inhibitCalls())
	require.Equal(t, 1, *spawns)
}

func TestRunnerDefaultCommandIsQuery(t *testing.T) {
	paths := setupRunnerEnv(t)
	spawner, _ := inProcessDaemon(t, &fakeManager{}, paths.configPath)

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, Spawner: spawner}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, "OFF\n", stdout.String())
}

func TestRunnerConcurrentOnInhibitsOnce(t *testing.T) {
	paths := setupRunnerEnv(t)
	manager := &fakeManager{}
	spawner, _ := inProcessDaemon(t, manager, paths.configPath)

	// Start the daemon so both clients race only on the actor.
	seed := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Spawner: spawner}
	require.Equal(t, 0, seed.Execute(context.Background(), []string{"--config", paths.configPath, "query"}))

	var wg sync.WaitGroup
	outputs := make([]*bytes.Buffer, 2)
	codes := make([]int, 2)
	for i := range outputs {
		i := i
		outputs[i] = &bytes.Buffer{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner := Runner{Stdout: outputs[i], Stderr: &bytes.Buffer{}, Spawner: spawner}
			codes[i] = runner.Execute(context.Background(), []string{"--config", paths.configPath, "on"})
		}()
	}
	wg.Wait()

	for i := range outputs {
		require.Equal(t, 0, codes[i])
		require.Equal(t, "ON\n", outputs[i].String())
	}
	require.Equal(t, 1, manager.inhibitCalls())
}

func TestRunnerReportsDaemonStartFailure(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Spawner: bootstrap.SpawnFunc(func() error { return nil }),
	}

	start := time.Now()
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "on"})
	require.Equal(t, 1, exitCode)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Contains(t, stderr.String(), "daemon failed to start")
	require.Empty(t, stdout.String())
}

func TestRunnerFailsWithoutRuntimeDir(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("XDG_RUNTIME_DIR", "")

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "query"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "XDG_RUNTIME_DIR")
}

func TestRunnerDaemonSessionManagerFailure(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stderr bytes.Buffer
	runner := Runner{
		Stdout: &bytes.Buffer{},
		Stderr: &stderr,
		ConnectSessionManager: func() (SessionManager, error) {
			return nil, errors.New("connect system bus: no such file")
		},
	}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "daemon"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "daemon startup failed")

	_, err := os.Stat(filepath.Join(paths.runtimeDir, ipc.SocketName))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunnerSecondDaemonExitsQuietly(t *testing.T) {
	paths := setupRunnerEnv(t)
	spawner, _ := inProcessDaemon(t, &fakeManager{}, paths.configPath)
	require.NoError(t, spawner.Spawn())

	socketPath := filepath.Join(paths.runtimeDir, ipc.SocketName)
	require.Eventually(t, func() bool {
		alive, _ := ipc.Probe(context.Background(), socketPath, 50*time.Millisecond)
		return alive
	}, 2*time.Second, 10*time.Millisecond)

	var stderr bytes.Buffer
	second := Runner{
		Stdout:                &bytes.Buffer{},
		Stderr:                &stderr,
		ConnectSessionManager: func() (SessionManager, error) { return &fakeManager{}, nil },
	}
	exitCode := second.Execute(context.Background(), []string{"--config", paths.configPath, "daemon"})
	require.Equal(t, 0, exitCode)
	require.Empty(t, stderr.String())
}

func TestRunnerDoctorUsesProbes(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	runner := Runner{
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
		Probes: &doctor.Probes{
			SocketPath: func() (string, error) { return filepath.Join(paths.runtimeDir, ipc.SocketName), nil },
			SessionManager: func() (doctor.Pinger, error) {
				return nil, errors.New("connect system bus: refused")
			},
		},
	}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "[FAIL] logind")
	require.Contains(t, stdout.String(), "[OK] config")
}

func TestRunnerRejectsNonStateReply(t *testing.T) {
	paths := setupRunnerEnv(t)
	socketPath := filepath.Join(paths.runtimeDir, ipc.SocketName)

	listener, err := ipc.Acquire(context.Background(), socketPath, 50*time.Millisecond, 0, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- ipc.Serve(ctx, listener, ipc.HandlerFunc(func(context.Context, ipc.Signal) (ipc.Signal, error) {
			return ipc.SignalQuery, nil
		}), nil)
	}()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, Spawner: bootstrap.SpawnFunc(func() error { return nil })}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "query"})
	require.Equal(t, 1, exitCode)
	require.Empty(t, stdout.String())
	require.Contains(t, stderr.String(), "ipc protocol error")
}
