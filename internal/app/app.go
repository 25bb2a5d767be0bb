package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"launcher-core/internal/api"
	"launcher-core/internal/auth"
	"launcher-core/internal/config"
	"launcher-core/internal/database"
	"launcher-core/internal/encryption"
	"launcher-core/internal/fetch"
	"launcher-core/internal/fs"
	"launcher-core/internal/launcher"
	"launcher-core/internal/metadata"
	"launcher-core/internal/process"
	"launcher-core/internal/settings"
	"launcher-core/internal/staging"
	"launcher-core/internal/token"
	"launcher-core/internal/vault"
)

// Version is the build version reported in the fetcher's User-Agent.
var Version = "dev"

// App is the application layer between the CLI and the launcher services.
// It constructs all dependencies from config and releases them on Close.
type App struct {
	cfg      *config.Config
	run      *Run
	db       *database.SQLiteDatabase
	settings io.Closer
	logger   launcher.Logger
	logFile  *os.File

	store    *launcher.ArtifactStore
	profiles *launcher.ProfileManager
	versions *launcher.VersionRegistry
	identity *launcher.Identity
	sweeper  *launcher.Sweeper
}

// New creates a fully wired App from the given config.
// command identifies the CLI command being run (e.g. "serve", "profile download").
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, command string) (_ *App, err error) {
	clock := launcher.RealClock{}
	run := NewRun(command, clock.Now())

	slogger, logFile, err := newLogger(cfg.Log, cfg.LogDir, run.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &App{cfg: cfg, run: run, logger: logger, logFile: logFile}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	a.db, err = database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	v, err = sealVault(v, cfg.Encryption)
	if err != nil {
		return nil, err
	}
	if err := v.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("validating vault: %w", err)
	}

	sa, err := staging.NewStagingAreaFromConfig(cfg.Staging)
	if err != nil {
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	kv, closer, err := settings.NewSettingsStoreFromConfig(ctx, cfg.Settings, a.db)
	if err != nil {
		return nil, fmt.Errorf("creating settings store: %w", err)
	}
	a.settings = closer

	var source launcher.ManifestSource = metadata.Unconfigured{}
	if cfg.Metadata.BaseURL != "" {
		source, err = metadata.NewHTTPSource(cfg.Metadata.BaseURL, cfg.Metadata.Timeout.Duration,
			cfg.Metadata.CacheSize, cfg.Metadata.CacheTTL.Duration)
		if err != nil {
			return nil, fmt.Errorf("creating metadata source: %w", err)
		}
	}

	idgen := launcher.UUIDGenerator{}
	a.store = launcher.NewArtifactStore(a.db, v, sa, logger, clock)
	a.profiles = launcher.NewProfileManager(
		a.db,
		a.store,
		source,
		fetch.NewHTTPFetcher(cfg.Download.Timeout.Duration, "lcore/"+Version),
		process.ExecSpawner{},
		fs.NewOSWorkspace(),
		logger,
		clock,
		launcher.ProfileOptions{
			ProfilesDir:    cfg.Launch.ProfilesDir,
			JavaPath:       cfg.Launch.JavaPath,
			Workers:        cfg.Download.Workers,
			MaxAttempts:    cfg.Download.MaxAttempts,
			InitialBackoff: cfg.Download.InitialBackoff.Duration,
			MaxBackoff:     cfg.Download.MaxBackoff.Duration,
		},
	)

	a.versions = launcher.NewVersionRegistry(a.db, a.store, kv, logger, clock, idgen)
	if err := a.versions.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading launcher versions: %w", err)
	}

	// Identity needs a signing secret; commands that never touch it can run
	// without one.
	if cfg.Auth.JWTSecret != "" {
		a.identity, err = newIdentity(ctx, cfg.Auth, a.db, logger, clock, idgen)
		if err != nil {
			return nil, err
		}
	}

	a.sweeper = launcher.NewSweeper(a.store, a.identity, cfg.GC.Interval.Duration, cfg.GC.GracePeriod.Duration, logger)
	logger.Debug("app initialized", "command", command)
	return a, nil
}

func sealVault(v launcher.Vault, cfg config.EncryptionConfig) (launcher.Vault, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return v, nil
	}
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found: run `lcore config init` with encryption enabled")
	}
	// Without a passphrase the vault can still seal new blobs but cannot
	// open existing ones.
	var dec launcher.DecryptionContext
	if cfg.Passphrase != "" {
		dec, err = enc.Unlock(cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
	}
	return vault.NewSealedVault(v, enc, dec), nil
}

func newIdentity(ctx context.Context, cfg config.AuthConfig, db *database.SQLiteDatabase, logger launcher.Logger, clock launcher.Clock, idgen launcher.IDGenerator) (*launcher.Identity, error) {
	verifier, err := auth.NewVerifierFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating credential verifier: %w", err)
	}
	tokens, err := token.NewJWT(cfg.JWTSecret, "lcore")
	if err != nil {
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}
	identity := launcher.NewIdentity(db, db, verifier, tokens, logger, clock, idgen, launcher.IdentityOptions{
		TokenTTL: cfg.TokenTTL.Duration,
		JoinTTL:  cfg.JoinTTL.Duration,
	})
	if err := identity.LoadBans(ctx); err != nil {
		return nil, err
	}
	return identity, nil
}

// Config returns the config the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the app logger.
func (a *App) Logger() launcher.Logger { return a.logger }

// Store returns the artifact store.
func (a *App) Store() *launcher.ArtifactStore { return a.store }

// Profiles returns the profile manager.
func (a *App) Profiles() *launcher.ProfileManager { return a.profiles }

// Versions returns the launcher version registry.
func (a *App) Versions() *launcher.VersionRegistry { return a.versions }

// Sweeper returns the artifact and session sweeper.
func (a *App) Sweeper() *launcher.Sweeper { return a.sweeper }

// ErrNoJWTSecret is returned by Identity when no signing secret is configured.
var ErrNoJWTSecret = errors.New("auth.jwt_secret is not set (use LCORE_JWT_SECRET)")

// Identity returns the identity core, or ErrNoJWTSecret if auth is not configured.
func (a *App) Identity() (*launcher.Identity, error) {
	if a.identity == nil {
		return nil, ErrNoJWTSecret
	}
	return a.identity, nil
}

// Serve runs the sweeper and the HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	identity, err := a.Identity()
	if err != nil {
		return err
	}
	a.sweeper.Start(ctx)
	defer a.sweeper.Stop()

	srv := api.NewServer(a.store, a.versions, identity, a.logger)
	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// Finish records the outcome of the command for the closing log line.
func (a *App) Finish(err error) {
	a.run.Finish(err)
}

// Close releases the database, the settings backend and the log file.
func (a *App) Close() error {
	a.logger.Info("run finished", "command", a.run.Command, "status", a.run.Status,
		"duration", time.Since(a.run.Started).Round(time.Millisecond).String())
	return a.closeResources()
}

func (a *App) closeResources() error {
	var errs []error
	if a.settings != nil {
		if err := a.settings.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing settings store: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
