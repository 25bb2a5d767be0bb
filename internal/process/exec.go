// Package process starts game processes with os/exec.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"launcher-core/internal/launcher"
)

// OutputFile receives the game's stdout and stderr inside its work dir.
const OutputFile = "lcore-game.log"

// ExecSpawner implements launcher.ProcessSpawner.
type ExecSpawner struct{}

var _ launcher.ProcessSpawner = ExecSpawner{}

// Spawn starts executable in workDir. The process is not bound to ctx: a
// game keeps running after the request that launched it returns.
func (ExecSpawner) Spawn(ctx context.Context, executable string, args []string, workDir string) (launcher.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	out, err := os.OpenFile(filepath.Join(workDir, OutputFile), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening game log: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Dir = workDir
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("starting %s: %w", executable, err)
	}
	return &execProcess{cmd: cmd, out: out}, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	out  *os.File
	once sync.Once
	err  error
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

// Wait may be called more than once; later calls return the first result.
func (p *execProcess) Wait() error {
	p.once.Do(func() {
		p.err = p.cmd.Wait()
		p.out.Close()
	})
	return p.err
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
		return fmt.Errorf("killing pid %d: %w", p.PID(), err)
	}
	return nil
}
