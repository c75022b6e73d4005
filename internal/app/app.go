package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"save-go/internal/backend"
	"save-go/internal/catalog"
	"save-go/internal/config"
	"save-go/internal/database"
	"save-go/internal/encryption"
	"save-go/internal/fs"
	"save-go/internal/model"
	"save-go/internal/notify"
	"save-go/internal/save"
	"save-go/internal/store"
	"save-go/internal/upload"
)

// ErrLocked is returned when a Space secret is needed but no passphrase is
// available to unlock it.
var ErrLocked = errors.New("space secrets are locked")

// PassphraseFunc supplies the passphrase that unlocks Space secrets. It is
// called at most once per SaveApp, the first time a secret is needed.
type PassphraseFunc func() (string, error)

// Options tune NewSaveApp beyond what the config file holds.
type Options struct {
	// Operation names the CLI command being run, for the log.
	Operation string

	// ConfigPath is where selection and profile changes are saved. Empty
	// keeps them in memory.
	ConfigPath string

	Passphrase PassphraseFunc
	Verbose    bool
}

// SaveApp is the application layer between the CLI and the library
// components. It constructs all dependencies from config and manages their
// lifecycle on Close.
type SaveApp struct {
	cfg      *config.Config
	opts     Options
	db       *database.SQLiteDatabase
	store    *store.Store
	content  *fs.ContentArea
	sealer   save.Sealer
	current  *save.Current
	bus      *notify.Bus
	backends *backend.Factory
	uploads  *upload.Coordinator
	catalog  *catalog.Service
	logger   save.Logger
	op       *Operation
	logFile  *os.File

	mu     sync.Mutex
	opener save.Opener
}

// NewSaveApp creates a fully wired SaveApp from the given config.
// The caller must call Close when done.
func NewSaveApp(ctx context.Context, cfg *config.Config, opts Options) (*SaveApp, error) {
	op := NewOperation(opts.Operation, time.Now())
	sl, logFile, err := newLogger(cfg.LogDir, op.ID, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a := &SaveApp{cfg: cfg, opts: opts, op: op, logFile: logFile, logger: logger}
	if err := a.open(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	logger.Debug("operation started", "operation", op.Name)
	return a, nil
}

func (a *SaveApp) open(ctx context.Context) error {
	cfg := a.cfg

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db
	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	content, err := fs.NewContentArea(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("creating content area: %w", err)
	}
	a.content = content

	st, err := store.Open(ctx, store.Options{
		Collections: model.AllCollections,
		Codec:       model.DefaultCodec(),
		Database:    db,
		Files:       content,
		Views:       model.Views(),
		Filtered:    model.FilteredViews(),
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	a.store = st

	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating sealer: %w", err)
	}
	a.sealer = sealer

	profile := save.Profile{Alias: cfg.Profile.Alias, Role: cfg.Profile.Role, Other: cfg.Profile.Other}
	a.current = save.NewCurrent(cfg.SelectedSpace, profile, a.persistCurrent)

	a.bus = notify.NewBus(st, notify.DefaultHistory, a.logger)
	a.backends = backend.NewFactory()
	a.uploads = upload.NewCoordinator(upload.Options{
		Store:            st,
		Content:          content,
		Backends:         upload.BackendsFunc(a.backend),
		Current:          a.current,
		Parallelism:      cfg.Upload.Parallelism,
		ProgressInterval: cfg.Upload.ProgressInterval(),
		Logger:           a.logger,
	})
	a.catalog = catalog.NewService(st, content, sealer, a.current, a.logger, save.RealClock{}, save.UUIDGenerator{})
	return nil
}

// persistCurrent writes selection and profile changes back to the config
// file.
func (a *SaveApp) persistCurrent(spaceID string, p save.Profile) {
	a.cfg.SelectedSpace = spaceID
	a.cfg.Profile = config.ProfileConfig{Alias: p.Alias, Role: p.Role, Other: p.Other}
	if a.opts.ConfigPath == "" {
		return
	}
	if err := config.WriteToFile(a.opts.ConfigPath, a.cfg); err != nil {
		a.logger.Warn("saving config", "path", a.opts.ConfigPath, "error", err)
	}
}

// backend builds the backend of a Space, opening its secret first.
func (a *SaveApp) backend(ctx context.Context, space model.Space) (save.Backend, error) {
	var secret string
	if len(space.SealedSecret) > 0 {
		opener, err := a.unlock()
		if err != nil {
			return nil, err
		}
		plain, err := opener.Open(space.SealedSecret)
		if err != nil {
			return nil, fmt.Errorf("opening secret of space %s: %w", space.PrettyName(), err)
		}
		secret = string(plain)
	}
	return a.backends.New(ctx, space, secret)
}

func (a *SaveApp) unlock() (save.Opener, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opener != nil {
		return a.opener, nil
	}
	if a.opts.Passphrase == nil {
		return nil, ErrLocked
	}
	passphrase, err := a.opts.Passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	opener, err := a.sealer.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking secrets: %w", err)
	}
	a.opener = opener
	return opener, nil
}

func (a *SaveApp) Config() *config.Config       { return a.cfg }
func (a *SaveApp) Catalog() *catalog.Service    { return a.catalog }
func (a *SaveApp) Uploads() *upload.Coordinator { return a.uploads }
func (a *SaveApp) Store() *store.Store          { return a.store }
func (a *SaveApp) Bus() *notify.Bus             { return a.bus }
func (a *SaveApp) Content() *fs.ContentArea     { return a.content }
func (a *SaveApp) Current() *save.Current       { return a.current }
func (a *SaveApp) Sealer() save.Sealer          { return a.sealer }
func (a *SaveApp) Logger() save.Logger          { return a.logger }
func (a *SaveApp) Operation() *Operation        { return a.op }

// Fail marks the operation as failed and logs err.
func (a *SaveApp) Fail(err error) {
	a.op.Fail()
	a.logger.Error("operation failed", "operation", a.op.Name, "error", err)
}

// ValidateSpace checks that the backend of a Space is reachable.
func (a *SaveApp) ValidateSpace(ctx context.Context, id string) error {
	space, err := a.catalog.Space(id)
	if err != nil {
		return err
	}
	b, err := a.backend(ctx, *space)
	if err != nil {
		return err
	}
	if err := b.ValidateSetup(ctx); err != nil {
		return fmt.Errorf("validating space %s: %w", space.PrettyName(), err)
	}
	return nil
}

// ListRemote lists a folder on the backend of a Space.
func (a *SaveApp) ListRemote(ctx context.Context, id, folder string) ([]save.RemoteEntry, error) {
	space, err := a.catalog.Space(id)
	if err != nil {
		return nil, err
	}
	b, err := a.backend(ctx, *space)
	if err != nil {
		return nil, err
	}
	return b.ListFolder(ctx, folder)
}

// UploadAssets uploads assets with the configured parallelism. Uploads a
// previous process left running are reset first so they can be retried.
func (a *SaveApp) UploadAssets(ctx context.Context, ids []string, onEvent func(upload.Event)) ([]upload.Result, error) {
	if n, err := a.uploads.RecoverInterrupted(); err != nil {
		return nil, fmt.Errorf("recovering interrupted uploads: %w", err)
	} else if n > 0 {
		a.logger.Warn("previous uploads were interrupted", "count", n)
	}
	return a.uploads.UploadAll(ctx, ids, onEvent), nil
}

// RemoveAsset cancels a running upload of the asset, then deletes it.
func (a *SaveApp) RemoveAsset(id string) error {
	a.uploads.Cancel(id)
	return a.catalog.RemoveAsset(id)
}

// Watch follows commits made by other processes until ctx is done.
func (a *SaveApp) Watch(ctx context.Context, interval time.Duration) error {
	err := a.store.Watch(ctx, interval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Backup writes a consistent copy of the database to path.
func (a *SaveApp) Backup(path string) error {
	if err := a.store.BackupTo(path); err != nil {
		return err
	}
	a.logger.Info("database backed up", "path", path)
	return nil
}

// Close waits for running uploads and closes all resources.
func (a *SaveApp) Close() error {
	return a.closeAll()
}

func (a *SaveApp) closeAll() error {
	var firstErr error
	if a.uploads != nil {
		a.uploads.Wait()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.store != nil {
		// Closing the store closes the database.
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	} else if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed(time.Now()).Round(time.Millisecond))
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
