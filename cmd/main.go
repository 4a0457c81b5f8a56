package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"delinquency-map/handler"
	"delinquency-map/internal/integrations/databricks"
	"delinquency-map/internal/integrations/paramstore"
	"delinquency-map/internal/render"
	"delinquency-map/internal/repository"
	"delinquency-map/internal/usecase"
)

func main() {
	ctx := context.Background()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// ---- Configuration (read only here) ----
	databricksHost := mustEnv("DATABRICKS_HOST")
	warehouseID := mustEnv("DATABRICKS_WAREHOUSE_ID")
	paramPrefix := mustEnv("PARAM_PREFIX")
	stateTable := mustEnv("STATE_TABLE")
	dataTable := envString("DATA_TABLE", "academy.genie_aibi.gold_faturamento_h3")
	spatialColumn := os.Getenv("SPATIAL_COLUMN")
	cacheTTL := envSeconds("DATA_CACHE_TTL_SECONDS", 30)
	maxQuestionLen := envInt("MAX_QUESTION_LENGTH", 500)
	maxHistoryItems := envInt("MAX_HISTORY_ITEMS", 20)
	genieTimeout := envSeconds("GENIE_TIMEOUT_SECONDS", 120)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}
	databricksClient, err := databricks.NewClient(ssmClient, paramPrefix, databricksHost, databricks.WithWaitTimeout(genieTimeout))
	if err != nil {
		slog.Error("failed to create Databricks client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	styles, err := render.Default()
	if err != nil {
		slog.Error("failed to load map styles", "err", err)
		os.Exit(1)
	}
	mapService, err := usecase.NewMapService(databricksClient, ssmClient, styles, usecase.MapConfig{
		WarehouseID:   warehouseID,
		DataTable:     dataTable,
		SpatialColumn: spatialColumn,
		CacheTTL:      cacheTTL,
		ParamPrefix:   paramPrefix,
	})
	if err != nil {
		slog.Error("failed to create map service", "err", err)
		os.Exit(1)
	}
	askService, err := usecase.NewAskService(ssmClient, databricksClient, stateClient, paramPrefix, maxHistoryItems, maxQuestionLen)
	if err != nil {
		slog.Error("failed to create ask service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(askService, mapService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSeconds(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Second
}
