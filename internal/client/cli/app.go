package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/client/client"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/config"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/services"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/store"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// pingTimeout bounds one reachability check of the status watcher.
const pingTimeout = 3 * time.Second

// App is an unlocked client session: the account key pair, the local store
// and the services talking to the configured server.
type App struct {
	config   *config.Config
	security cryptox.Provider
	db       *sql.DB
	store    *store.Store
	server   services.ServerService
	sync     services.SyncService
	log      logging.Logger
	reader   *bufio.Reader
	out      io.Writer

	mu   sync.Mutex
	mode Mode
}

// NewApp unlocks (or creates) the key pair with passphrase, opens the local
// database and connects to the server. The connection is lazy, so an
// unreachable server does not fail startup.
func NewApp(ctx context.Context, c *config.Config, passphrase []byte) (*App, error) {
	log := logging.NewJSONLogger(c.LogFile, slog.LevelInfo)

	security := cryptox.NewSecurity()
	created, err := cryptox.LoadOrCreateKeyPairFile(security, c.KeyPairFile, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlock key pair %s: %w", c.KeyPairFile, err)
	}
	if created {
		log.Info(ctx, "created key pair", "file", c.KeyPairFile)
	}

	db, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	conn, err := client.NewBulletinClient(c.ServerEndpointAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a, err := newApp(ctx, c, security, db, conn, log)
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, c *config.Config, security cryptox.Provider, db *sql.DB, conn client.Client, log logging.Logger) (*App, error) {
	repos := client.NewRepositories(db)

	st, err := store.New(repos.Packets, security, repos.Metadata, log)
	if err != nil {
		return nil, err
	}
	if err := st.LoadFolders(ctx); err != nil {
		return nil, err
	}
	st.SetHQPublicKey(c.HQPublicKey)
	if _, err := st.RepairOrphans(ctx); err != nil {
		log.Warn(ctx, "failed to recover orphan bulletins", "error", err)
	}

	return &App{
		config:   c,
		security: security,
		db:       db,
		store:    st,
		server:   services.NewServerService(conn, security, repos.Metadata, c.ServerPublicKey, log),
		sync:     services.NewSyncService(st, conn, c.ChunkSize, log),
		log:      log.With("module", "cli"),
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		mode:     ModeOffline,
	}, nil
}

// Mode reports whether the last check reached the server.
func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()
	if changed {
		a.log.Info(context.Background(), "connectivity changed", "mode", string(mode))
	}
}

// Run starts the status watcher and the REPL on stdin and blocks until the
// user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}()

	fmt.Fprintln(a.out, "Bulletin client (type 'help' for commands)")
	runREPL(ctx, a, func() string { return fmt.Sprintf("(%s)", a.Mode()) }, bufio.NewScanner(a.reader))
}

// StartOnlineStatusWatcher pings the server every interval. While the
// server is reachable each tick also sends the next pending bulletin, so
// the outboxes drain in the background.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := a.server.Ping(pingCtx)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)

	code, err := a.sync.BackgroundUpload(ctx, nil).Wait()
	switch {
	case err != nil:
		a.log.Warn(ctx, "background upload failed", "error", err)
	case code != "" && code != transfer.OK && code != transfer.Duplicate:
		a.log.Warn(ctx, "background upload refused", "result", code)
	}
}

// Close persists the folders, closes the connection and the database and
// forgets the key pair.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.store.SaveFolders(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.server.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}
	a.security.ClearKeyPair()
	return errors.Join(errs...)
}
