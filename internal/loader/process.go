package loader

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Process is a handle on a spawned loader process.
type Process interface {
	Pid() int
	// Terminate asks the process (and its children where the platform allows)
	// to stop. It returns an error if the process is already gone.
	Terminate() error
}

// SpawnFunc starts name with args in the background and returns as soon as
// the process exists. It must not wait for the process to exit.
type SpawnFunc func(ctx context.Context, name string, args []string) (Process, error)

type osProcess struct {
	proc *os.Process
}

func (p *osProcess) Pid() int { return p.proc.Pid }

func (p *osProcess) Terminate() error {
	return terminate(p.proc)
}

// SpawnDetached starts a detached child with stdio bound to the null device
// so it cannot write into the framed stdout. A goroutine reaps the child; the
// caller only keeps the returned handle.
func SpawnDetached(_ context.Context, name string, args []string) (Process, error) {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()

	return &osProcess{proc: cmd.Process}, nil
}
