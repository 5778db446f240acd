package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/crim-ca/weaver-ems/internal/adapter"
	"github.com/crim-ca/weaver-ems/internal/api"
	"github.com/crim-ca/weaver-ems/internal/config"
	"github.com/crim-ca/weaver-ems/internal/container"
	"github.com/crim-ca/weaver-ems/internal/database"
	"github.com/crim-ca/weaver-ems/internal/datasource"
	"github.com/crim-ca/weaver-ems/internal/engine"
	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/pkgload"
	"github.com/crim-ca/weaver-ems/internal/process"
)

// newServeCommand wires every C-table component (spec.md's job/process
// stores, package loader, container runner, data-source registry,
// execution engine, HTTP API) and runs until SIGINT/SIGTERM, draining
// in-flight requests and jobs the way the teacher's cmd/worker/main.go
// drains its restate worker on signal.NotifyContext cancellation.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the EMS/ADES HTTP API and execution engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	defer log.Sync()
	log.Info("starting weaver-ems",
		zap.String("mode", cfg.Processing.Mode),
		zap.String("database", cfg.Database.Provider),
	)

	if err := database.RunMigrations(cfg.Database.ConnString(), log); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	sqlDriver := "pgx"
	if cfg.Database.Provider == "sqlite" {
		sqlDriver = "sqlite"
	}
	db, err := sqlx.Connect(sqlDriver, stripSQLiteScheme(cfg.Database.ConnString()))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(int(cfg.Database.MaxConnections))
	defer db.Close()

	jobs := job.NewSQLStore(db, cfg.Database.Provider)
	processes := process.NewSQLStore(db, cfg.Database.Provider)

	loader := pkgload.NewLoader()

	runner, err := newContainerRunner(cfg.Container)
	if err != nil {
		return fmt.Errorf("initialize container runner: %w", err)
	}

	localADES := cfg.WPS.URL + cfg.WPS.Path
	datasources := datasource.NewRegistry(localADES)
	if cfg.WPS.DataSourcesFile != "" {
		datasources, err = datasource.LoadFile(cfg.WPS.DataSourcesFile, localADES)
		if err != nil {
			return fmt.Errorf("load data sources file: %w", err)
		}
	}

	eng := engine.New(engine.Config{
		Mode:            adapter.Mode(cfg.Processing.Mode),
		ADESEndpoint:    localADES,
		WorkDir:         cfg.WPS.Workdir,
		OutputDir:       cfg.WPS.OutputDir,
		OutputURL:       cfg.WPS.OutputURL,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, jobs, processes, loader, datasources, runner, &http.Client{Timeout: 30 * time.Second}, log)
	eng.Start()

	server := api.New(&cfg.HTTP, &cfg.Log, cfg.WPS.URL, eng, jobs, processes, loader, log)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	if err := eng.Stop(); err != nil {
		log.Error("engine shutdown error", zap.Error(err))
	}

	log.Info("weaver-ems stopped")
	return nil
}

// newContainerRunner selects the container.Runner matching
// cc.Runtime ("docker" or "mock").
func newContainerRunner(cc config.ContainerConfig) (container.Runner, error) {
	switch cc.Runtime {
	case "mock":
		return container.NewFake(), nil
	default:
		return container.NewDockerRunner(cc.DockerHost, cc.Network, log)
	}
}

// stripSQLiteScheme drops the "sqlite:" prefix DatabaseConfig.ConnString
// adds for golang-migrate's driver selection: database/sql's own sqlite
// driver takes a bare file path / DSN instead.
func stripSQLiteScheme(connString string) string {
	const prefix = "sqlite:"
	if len(connString) > len(prefix) && connString[:len(prefix)] == prefix {
		return connString[len(prefix):]
	}
	return connString
}
