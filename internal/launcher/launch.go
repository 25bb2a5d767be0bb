package launcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// StartupOptions are the per-launch settings passed to the game process.
type StartupOptions struct {
	MinRAMMB      int
	MaxRAMMB      int
	FullScreen    bool
	WindowWidth   int
	WindowHeight  int
	ServerAddress string
	ServerPort    int
	UserName      string
	UserUUID      string
	AccessToken   string
	ExtraJVMArgs  []string
}

// CreateLaunchProcess installs the profile's artifacts into its client
// directory and spawns the game. The profile must be Ready; it moves to
// Launching and back to Ready when the process exits.
//
// An artifact that fails its integrity check during install is invalidated
// and the profile, still Ready at that point, returns to Validating so the
// next download re-fetches it.
func (m *ProfileManager) CreateLaunchProcess(ctx context.Context, name string, opts StartupOptions) (Process, error) {
	release, err := m.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := m.GetProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	if p.State != StateReady {
		return nil, &ProfileNotReadyError{Name: name, State: p.State}
	}

	if err := m.install(ctx, p); err != nil {
		var integrity *IntegrityError
		if errors.As(err, &integrity) {
			if ierr := m.store.Invalidate(ctx, integrity.Hash); ierr != nil {
				m.logger.Error("invalidating corrupt artifact", "hash", integrity.Hash, "error", ierr)
			}
			if serr := m.setState(ctx, p, StateValidating); serr != nil {
				m.logger.Error("restoring profile state", "profile", name, "error", serr)
			}
		}
		return nil, err
	}

	args := buildLaunchArgs(p, opts)
	proc, err := m.spawner.Spawn(ctx, m.opts.JavaPath, args, p.ClientPath)
	if err != nil {
		return nil, fmt.Errorf("spawning game for %q: %w", name, err)
	}
	if err := m.setState(ctx, p, StateLaunching); err != nil {
		_ = proc.Kill()
		return nil, err
	}

	m.procMu.Lock()
	m.procs[name] = proc
	m.procMu.Unlock()

	m.logger.Info("game launched", "profile", name, "pid", proc.PID())
	m.games.Add(1)
	go func() {
		defer m.games.Done()
		m.awaitExit(name, proc)
	}()
	return proc, nil
}

// WaitForGames blocks until every launched game has exited and its profile
// has left Launching.
func (m *ProfileManager) WaitForGames() {
	m.games.Wait()
}

// awaitExit returns the profile to Ready once its process exits, unless the
// profile was removed or changed meanwhile.
func (m *ProfileManager) awaitExit(name string, proc Process) {
	werr := proc.Wait()

	m.procMu.Lock()
	current := m.procs[name]
	if current == proc {
		delete(m.procs, name)
	}
	m.procMu.Unlock()
	if current != proc {
		return
	}

	ctx := context.Background()
	p, err := m.profiles.FindProfile(ctx, name)
	if err != nil || p == nil || p.State != StateLaunching {
		return
	}
	if err := m.setState(ctx, p, StateReady); err != nil {
		m.logger.Error("returning profile to ready", "profile", name, "error", err)
		return
	}
	if werr != nil {
		m.logger.Warn("game exited with error", "profile", name, "error", werr)
		return
	}
	m.logger.Info("game exited", "profile", name)
}

// install writes every manifest entry into the client directory, skipping
// files already present with the expected size and hash.
func (m *ProfileManager) install(ctx context.Context, p *Profile) error {
	for _, e := range p.Manifest.Entries {
		ok, err := m.workspace.Installed(p.ClientPath, e.Path, e.Size, e.Hash)
		if err != nil {
			return fmt.Errorf("checking %s: %w", e.Path, err)
		}
		if ok {
			continue
		}
		if err := m.installEntry(ctx, p.ClientPath, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *ProfileManager) installEntry(ctx context.Context, root string, e ManifestEntry) error {
	rc, err := m.store.Get(ctx, e.Hash)
	if err != nil {
		return fmt.Errorf("reading %s: %w", e.Path, err)
	}
	defer rc.Close()
	if err := m.workspace.Install(root, e.Path, rc); err != nil {
		return fmt.Errorf("installing %s: %w", e.Path, err)
	}
	return nil
}

// buildLaunchArgs assembles JVM and game arguments. Client and library
// entries form the classpath in manifest order.
func buildLaunchArgs(p *Profile, opts StartupOptions) []string {
	root := p.ClientPath
	var args []string
	if opts.MinRAMMB > 0 {
		args = append(args, "-Xms"+strconv.Itoa(opts.MinRAMMB)+"M")
	}
	if opts.MaxRAMMB > 0 {
		args = append(args, "-Xmx"+strconv.Itoa(opts.MaxRAMMB)+"M")
	}
	args = append(args, opts.ExtraJVMArgs...)
	args = append(args, "-Djava.library.path="+filepath.Join(root, "natives"))

	var classpath []string
	for _, e := range p.Manifest.Entries {
		if e.Kind == EntryClient || e.Kind == EntryLibrary {
			classpath = append(classpath, filepath.Join(root, filepath.FromSlash(e.Path)))
		}
	}
	if len(classpath) > 0 {
		args = append(args, "-cp", strings.Join(classpath, string(filepath.ListSeparator)))
	}
	args = append(args, p.Manifest.MainClass)

	args = append(args,
		"--username", opts.UserName,
		"--uuid", opts.UserUUID,
		"--accessToken", opts.AccessToken,
		"--version", p.LaunchVersion,
		"--gameDir", root,
		"--assetsDir", filepath.Join(root, "assets"),
	)
	if opts.FullScreen {
		args = append(args, "--fullscreen")
	} else if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		args = append(args, "--width", strconv.Itoa(opts.WindowWidth), "--height", strconv.Itoa(opts.WindowHeight))
	}
	if opts.ServerAddress != "" {
		args = append(args, "--server", opts.ServerAddress)
		if opts.ServerPort > 0 {
			args = append(args, "--port", strconv.Itoa(opts.ServerPort))
		}
	}
	return args
}
