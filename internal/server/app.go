// Package server assembles the tipbot service: ledger client, custody
// registry, attempt journal and routing engine, exposed over gRPC with a
// metrics/health HTTP endpoint and a background reconciler.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/cryptox"
	"github.com/dmitrijs2005/tipbot/internal/custody"
	"github.com/dmitrijs2005/tipbot/internal/filex"
	"github.com/dmitrijs2005/tipbot/internal/journal"
	"github.com/dmitrijs2005/tipbot/internal/ledger"
	"github.com/dmitrijs2005/tipbot/internal/logging"
	"github.com/dmitrijs2005/tipbot/internal/metrics"
	"github.com/dmitrijs2005/tipbot/internal/routing"
	"github.com/dmitrijs2005/tipbot/internal/server/config"
	"github.com/dmitrijs2005/tipbot/internal/solana"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/tipbot/internal/server/grpc"
)

// Simulator funding for the authority in memory mode.
const (
	memoryAirdropLamports = 1_000 * 1_000_000_000
	memoryMintUnits       = 1_000_000 * 1_000_000
)

// readPassphrase is a seam so tests do not need a terminal.
var readPassphrase = func(envVar string) ([]byte, error) {
	return cryptox.NewPassphraseSource(envVar, os.Stderr).Get()
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	engine   *routing.Engine
	custody  *custody.Registry
	journal  *journal.Store
	closers  []func() error
}

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	ctx := context.Background()
	logger := logging.Setup(logging.Options{
		Service: "tipbot",
		Env:     c.Env,
		File:    c.LogFile,
		Level:   parseLevel(c.LogLevel),
	})
	app := &App{config: c, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.gatherer = reg
	app.metrics = metrics.New(reg)

	program, err := solana.PublicKeyFromBase58(c.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(c.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	authority, err := app.loadAuthority()
	if err != nil {
		return nil, err
	}

	l, err := app.newLedger(program, mint, authority)
	if err != nil {
		app.Close()
		return nil, err
	}

	pass, err := readPassphrase(c.PassphraseEnv)
	if err != nil {
		return nil, fmt.Errorf("custody passphrase: %w", err)
	}
	sealer, err := cryptox.NewSealer(pass)
	common.WipeByteArray(pass)
	if err != nil {
		return nil, fmt.Errorf("custody passphrase: %w", err)
	}

	store, err := app.newCustodyStore(ctx)
	if err != nil {
		sealer.Wipe()
		app.Close()
		return nil, fmt.Errorf("custody store init error: %w", err)
	}
	app.custody = custody.NewRegistry(store, sealer, logger)
	app.closers = append(app.closers, app.custody.Close)
	if err := app.custody.Open(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if err := filex.EnsureDir(filepath.Dir(c.JournalPath)); err != nil {
		app.Close()
		return nil, err
	}
	app.journal, err = journal.Open(c.JournalPath, nil)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("journal init error: %w", err)
	}
	app.closers = append(app.closers, app.journal.Close)

	app.engine = routing.NewEngine(routing.Deps{
		Ledger:    l,
		Custody:   app.custody,
		Journal:   app.journal,
		Authority: authority,
		Program:   program,
		Mint:      mint,
		Metrics:   app.metrics,
		Logger:    logger,
		Config: routing.Config{
			Cluster:             c.Cluster,
			RegistrationFunding: c.RegistrationFunding,
			PendingGrace:        c.PendingGrace,
		},
	})

	if c.LedgerMode == config.LedgerMemory {
		if _, err := app.engine.InitializeMaster(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("initialize master: %w", err)
		}
	}

	return app, nil
}

// Engine exposes the routing engine, mainly for tests and tooling.
func (app *App) Engine() *routing.Engine { return app.engine }

func (app *App) loadAuthority() (*solana.Keypair, error) {
	kp, err := solana.LoadKeypairFile(app.config.AuthorityKeyPath)
	if err == nil {
		return kp, nil
	}
	if app.config.LedgerMode == config.LedgerMemory && errors.Is(err, os.ErrNotExist) {
		app.logger.Warn(context.Background(), "authority keypair not found, using an ephemeral one", "path", app.config.AuthorityKeyPath)
		return solana.NewKeypair()
	}
	return nil, fmt.Errorf("authority keypair: %w", err)
}

func (app *App) newLedger(program, mint solana.PublicKey, authority *solana.Keypair) (ledger.Ledger, error) {
	c := app.config
	if c.LedgerMode == config.LedgerMemory {
		sim := ledger.NewSimulator(program, mint)
		sim.Airdrop(authority.PublicKey(), memoryAirdropLamports)
		if err := sim.MintTo(authority.PublicKey(), memoryMintUnits); err != nil {
			return nil, err
		}
		return sim, nil
	}
	return ledger.NewRPCLedger(ledger.RPCConfig{
		URL:            c.RPCURL,
		Commitment:     c.Commitment,
		RequestsPerSec: c.RPCRequestsPerSec,
	}, app.logger)
}

func (app *App) newCustodyStore(ctx context.Context) (custody.Store, error) {
	c := app.config
	switch c.CustodyBackend {
	case config.CustodyS3:
		return custody.NewS3Store(ctx, custody.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
			Key:          c.S3Key,
		})
	case config.CustodyPostgres:
		db, err := custody.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		store := custody.NewPostgresStore(db)
		if err := store.RunMigrations(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	if err := filex.EnsureDir(filepath.Dir(c.CustodyFile)); err != nil {
		return nil, err
	}
	return custody.NewFileStore(c.CustodyFile), nil
}

// Close releases resources in reverse order of acquisition.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error(context.Background(), "close error", "error", err.Error())
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.engine, app.metrics, app.config.SecretKey)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           metrics.NewRouter(app.gatherer, app.health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// health reports whether the registry is usable and the journal answers.
func (app *App) health(ctx context.Context) error {
	if _, err := app.journal.Pending(); err != nil {
		return err
	}
	_, _, err := app.custody.Lookup(ctx, "healthcheck")
	return err
}

func (app *App) runReconciler(ctx context.Context) {
	if app.config.ReconcileInterval <= 0 {
		return
	}
	ticker := time.NewTicker(app.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := app.engine.Reconcile(ctx)
			if err != nil {
				app.logger.Error(ctx, "reconcile failed", "error", err.Error())
				continue
			}
			if rep.Confirmed+rep.Failed+rep.NeedsReview+rep.Registrations > 0 {
				app.logger.Info(ctx, "reconciled",
					"confirmed", rep.Confirmed, "failed", rep.Failed, "pending", rep.StillPending,
					"needs_review", rep.NeedsReview, "registrations", rep.Registrations)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"ledger", app.config.LedgerMode,
		"custody", app.config.CustodyBackend,
		logging.MaskField("rpc_url", app.config.RPCURL),
		logging.MaskField("database_dsn", app.config.DatabaseDSN),
	)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.runReconciler(ctx)
	}()

	wg.Wait()
	app.Close()
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
