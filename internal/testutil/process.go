package testutil

import (
	"context"
	"sync"

	"launcher-core/internal/launcher"
)

// SpawnCall records one Spawn invocation.
type SpawnCall struct {
	Executable string
	Args       []string
	WorkDir    string
}

// StubSpawner records spawns and hands out StubProcesses.
type StubSpawner struct {
	mu        sync.Mutex
	calls     []SpawnCall
	processes []*StubProcess
	Err       error
}

func NewStubSpawner() *StubSpawner {
	return &StubSpawner{}
}

func (s *StubSpawner) Spawn(ctx context.Context, executable string, args []string, workDir string) (launcher.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.calls = append(s.calls, SpawnCall{Executable: executable, Args: append([]string(nil), args...), WorkDir: workDir})
	p := &StubProcess{pid: 1000 + len(s.processes), exited: make(chan struct{})}
	s.processes = append(s.processes, p)
	return p, nil
}

// Calls returns the recorded spawns.
func (s *StubSpawner) Calls() []SpawnCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpawnCall(nil), s.calls...)
}

// Last returns the most recently spawned process, or nil.
func (s *StubSpawner) Last() *StubProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.processes) == 0 {
		return nil
	}
	return s.processes[len(s.processes)-1]
}

// StubProcess blocks in Wait until Exit or Kill is called.
type StubProcess struct {
	pid    int
	once   sync.Once
	exited chan struct{}
	err    error
	killed bool
	mu     sync.Mutex
}

func (p *StubProcess) PID() int { return p.pid }

func (p *StubProcess) Wait() error {
	<-p.exited
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Exit ends the process with err.
func (p *StubProcess) Exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.exited)
	})
}

func (p *StubProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(nil)
	return nil
}

// Killed reports whether Kill was called.
func (p *StubProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

var _ launcher.ProcessSpawner = (*StubSpawner)(nil)
