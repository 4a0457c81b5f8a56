package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"delinquency-map/handler"
	"delinquency-map/internal/integrations/databricks"
	"delinquency-map/internal/integrations/paramstore"
	"delinquency-map/internal/render"
	"delinquency-map/internal/repository/sqlite"
	"delinquency-map/internal/usecase"
)

type serveOptions struct {
	addr          string
	dbPath        string
	host          string
	warehouseID   string
	paramPrefix   string
	dataTable     string
	spatialColumn string
	stylesPath    string
	cacheTTL      time.Duration
	genieTimeout  time.Duration
	verbose       bool
}

func serveCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the API on a local address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":8080", "listen address")
	f.StringVar(&opts.dbPath, "db", "devserver.db", "SQLite file for conversation state")
	f.StringVar(&opts.host, "host", os.Getenv("DATABRICKS_HOST"), "Databricks workspace URL")
	f.StringVar(&opts.warehouseID, "warehouse", os.Getenv("DATABRICKS_WAREHOUSE_ID"), "SQL warehouse id")
	f.StringVar(&opts.paramPrefix, "param-prefix", os.Getenv("PARAM_PREFIX"), "SSM parameter prefix")
	f.StringVar(&opts.dataTable, "data-table", "academy.genie_aibi.gold_faturamento_h3", "gold table queried by the map views")
	f.StringVar(&opts.spatialColumn, "spatial-column", "", "H3 column name (empty scans for a column containing \"h3\")")
	f.StringVar(&opts.stylesPath, "styles", "", "YAML file overriding the embedded map styles")
	f.DurationVar(&opts.cacheTTL, "cache-ttl", 30*time.Second, "warehouse result reuse window")
	f.DurationVar(&opts.genieTimeout, "genie-timeout", 2*time.Minute, "bound for waiting on a Genie message")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, closeState, err := buildHandler(ctx, opts)
	if err != nil {
		return err
	}
	defer closeState()

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           newHTTPAdapter(h.Handle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("devserver listening", "addr", opts.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildHandler(ctx context.Context, opts serveOptions) (*handler.Handler, func(), error) {
	styles, err := loadStyles(opts.stylesPath)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load AWS config: %w", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	dbx, err := databricks.NewClient(params, opts.paramPrefix, opts.host, databricks.WithWaitTimeout(opts.genieTimeout))
	if err != nil {
		return nil, nil, err
	}

	state, err := sqlite.New(ctx, opts.dbPath)
	if err != nil {
		return nil, nil, err
	}
	closeState := func() {
		if err := state.Close(); err != nil {
			slog.Warn("closing state store", "err", err)
		}
	}

	maps, err := usecase.NewMapService(dbx, params, styles, usecase.MapConfig{
		WarehouseID:   opts.warehouseID,
		DataTable:     opts.dataTable,
		SpatialColumn: opts.spatialColumn,
		CacheTTL:      opts.cacheTTL,
		ParamPrefix:   opts.paramPrefix,
	})
	if err != nil {
		closeState()
		return nil, nil, err
	}
	ask, err := usecase.NewAskService(params, dbx, state, opts.paramPrefix, 0, 0)
	if err != nil {
		closeState()
		return nil, nil, err
	}
	h, err := handler.NewHandler(ask, maps)
	if err != nil {
		closeState()
		return nil, nil, err
	}
	return h, closeState, nil
}

func loadStyles(path string) (render.Styles, error) {
	if path == "" {
		return render.Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return render.Styles{}, fmt.Errorf("read styles: %w", err)
	}
	return render.Load(raw)
}
