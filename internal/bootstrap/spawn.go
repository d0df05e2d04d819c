package bootstrap

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// ExecSpawner starts Executable with Args in a new session with stdio on
// /dev/null, so the child outlives the invoking terminal and process.
type ExecSpawner struct {
	Executable string
	Args       []string
	Env        []string
}

// SelfSpawner re-executes the running binary with args.
func SelfSpawner(args ...string) (ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return ExecSpawner{}, fmt.Errorf("resolve executable: %w", err)
	}
	return ExecSpawner{Executable: exe, Args: args}, nil
}

// Spawn starts the process and releases it without waiting.
func (s ExecSpawner) Spawn() error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(s.Executable, s.Args...)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.Dir = "/"
	cmd.Env = s.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.Executable, err)
	}
	return cmd.Process.Release()
}
