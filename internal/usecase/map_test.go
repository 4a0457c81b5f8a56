package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"delinquency-map/internal/domain"
	"delinquency-map/internal/integrations/databricks"
	"delinquency-map/internal/render"
)

type fakeWarehouse struct {
	mu       sync.Mutex
	result   domain.TabularResult
	err      error
	calls    int
	lastStmt string
	lastWHID string
}

func (f *fakeWarehouse) ExecuteStatement(ctx context.Context, warehouseID, statement string) (domain.TabularResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := ctx.Err(); err != nil {
		return domain.TabularResult{}, err
	}
	f.lastWHID = warehouseID
	f.lastStmt = statement
	return f.result, f.err
}

func col(name string, values ...any) domain.Column {
	return domain.Column{Name: name, Values: values}
}

func table(t *testing.T, cols ...domain.Column) domain.TabularResult {
	t.Helper()
	result, err := domain.NewTabularResult(cols...)
	require.NoError(t, err)
	return result
}

// goldTable mimics the warehouse gold table: integer H3 cells and mixed
// measure types.
func goldTable(t *testing.T) domain.TabularResult {
	return table(t,
		col("h3", int64(613196570357137407), int64(613196570357137408), "8828308281fffff", nil),
		col("contagem_clientes", int64(3), "7", 0.0, int64(2)),
		col("valor_inadimplencia", 1500.5, 300.0, "abc", 10.0),
		col("genero_cliente", "F", "M", "F", "M"),
		col("bairro", "Centro", "Zona Sul", "Centro", "Centro"),
		col("faixa_divida", "0-30", "31-60", "0-30", "0-30"),
	)
}

func newTestMapService(t *testing.T, w WarehouseClient, p ParamGetter, cfg MapConfig) *MapService {
	t.Helper()
	styles, err := render.Default()
	require.NoError(t, err)
	if cfg.WarehouseID == "" {
		cfg.WarehouseID = "wh-1"
	}
	if cfg.DataTable == "" {
		cfg.DataTable = "academy.genie_aibi.gold_faturamento_h3"
	}
	if cfg.ParamPrefix == "" {
		cfg.ParamPrefix = "/delinquency"
	}
	svc, err := NewMapService(w, p, styles, cfg)
	require.NoError(t, err)
	return svc
}

func TestNewMapService_Validates(t *testing.T) {
	styles, err := render.Default()
	require.NoError(t, err)
	valid := MapConfig{WarehouseID: "wh-1", DataTable: "a.b.c", ParamPrefix: "/p"}

	_, err = NewMapService(nil, defaultParams(), styles, valid)
	require.Error(t, err)

	_, err = NewMapService(&fakeWarehouse{}, nil, styles, valid)
	require.Error(t, err)

	cfg := valid
	cfg.WarehouseID = " "
	_, err = NewMapService(&fakeWarehouse{}, defaultParams(), styles, cfg)
	require.Error(t, err)

	cfg = valid
	cfg.DataTable = "t; DROP TABLE t"
	_, err = NewMapService(&fakeWarehouse{}, defaultParams(), styles, cfg)
	require.ErrorContains(t, err, "invalid data table")

	cfg = valid
	cfg.ParamPrefix = ""
	_, err = NewMapService(&fakeWarehouse{}, defaultParams(), styles, cfg)
	require.Error(t, err)
}

func TestHeatmap_EndToEndRow(t *testing.T) {
	w := &fakeWarehouse{result: table(t,
		col("h3", int64(613196570357137407)),
		col("contagem_clientes", int64(3)),
		col("genero_cliente", "F"),
		col("bairro", "Centro"),
		col("faixa_divida", "0-30"),
	)}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	view, err := svc.Heatmap(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, view.RowCount)
	require.Len(t, view.Data, 1)
	require.Equal(t, "8828308299fffff", view.Data[0]["h3"])
	require.Equal(t, 3.0, view.Data[0]["contagem_clientes"])
	require.Equal(t, 3.0, view.TotalClients)
	require.NotEmpty(t, view.Config)
	require.Equal(t, "SELECT * FROM academy.genie_aibi.gold_faturamento_h3", w.lastStmt)
	require.Equal(t, "wh-1", w.lastWHID)
}

func TestHeatmap_DropsIncompleteRows(t *testing.T) {
	w := &fakeWarehouse{result: goldTable(t)}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	view, err := svc.Heatmap(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, view.RowCount)
	require.Equal(t, "8828308299fffff", view.Data[0]["h3"])
	require.Equal(t, "8828308281fffff", view.Data[2]["h3"])
	require.Equal(t, 12.0, view.TotalClients)
}

func TestMapViews_NonFiniteValuesStayEncodable(t *testing.T) {
	w := &fakeWarehouse{result: table(t,
		col("h3", int64(613196570357137407), int64(613196570357137408), "8828308281fffff"),
		col("contagem_clientes", int64(3), math.Inf(1), 2.0),
		col("genero_cliente", "F", "M", "F"),
		col("bairro", "Centro", "Sé", "Centro"),
		col("faixa_divida", "0-30", "31-60", "0-30"),
		col("valor_inadimplencia", 100.0, 50.0, math.Inf(-1)),
		col("taxa", 0.5, 0.2, math.NaN()),
	)}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	heatmap, err := svc.Heatmap(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, heatmap.RowCount)
	require.Equal(t, 5.0, heatmap.TotalClients)
	require.Nil(t, heatmap.Data[1]["taxa"])
	_, err = json.Marshal(heatmap.Data)
	require.NoError(t, err)

	hex, err := svc.Hex3D(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, Hex3DOK, hex.State)
	_, err = json.Marshal(hex.Deck)
	require.NoError(t, err)
}

func TestHeatmap_SpatialColumnNotFound(t *testing.T) {
	w := &fakeWarehouse{result: table(t, col("cell", "x"), col("contagem_clientes", 1.0))}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	_, err := svc.Heatmap(context.Background())
	requireUsecaseError(t, err, ErrorSchemaViolation, "spatial_column_not_found")
}

func TestHeatmap_ExplicitSpatialColumn(t *testing.T) {
	w := &fakeWarehouse{result: table(t,
		col("h3_parent", "ignored"),
		col("cell_id", int64(613196570357137407)),
		col("contagem_clientes", 1.0),
		col("genero_cliente", "F"),
		col("bairro", "Centro"),
		col("faixa_divida", "0-30"),
	)}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{SpatialColumn: "cell_id"})

	view, err := svc.Heatmap(context.Background())
	require.NoError(t, err)
	require.Equal(t, "8828308299fffff", view.Data[0]["h3"])
	require.Equal(t, "ignored", view.Data[0]["h3_parent"])
}

func TestHeatmap_MissingCategoricalColumn(t *testing.T) {
	w := &fakeWarehouse{result: table(t, col("h3", "8828308299fffff"), col("contagem_clientes", 1.0))}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	_, err := svc.Heatmap(context.Background())
	requireUsecaseError(t, err, ErrorSchemaViolation, "missing_column")
}

func TestHeatmap_UpstreamFaults(t *testing.T) {
	svc := newTestMapService(t, &fakeWarehouse{err: errors.New("warehouse stopped")}, defaultParams(), MapConfig{})
	_, err := svc.Heatmap(context.Background())
	requireUsecaseError(t, err, ErrorUpstream, "warehouse_error")

	limited := &databricks.HTTPStatusError{StatusCode: http.StatusTooManyRequests}
	svc = newTestMapService(t, &fakeWarehouse{err: limited}, defaultParams(), MapConfig{})
	_, err = svc.Heatmap(context.Background())
	requireUsecaseError(t, err, ErrorRateLimited, "warehouse_error_rate_limited")

	svc = newTestMapService(t, &fakeWarehouse{result: domain.TabularResult{}}, defaultParams(), MapConfig{})
	_, err = svc.Heatmap(context.Background())
	requireUsecaseError(t, err, ErrorNoData, "empty_result")
}

func TestLoad_ReusesResultWithinTTL(t *testing.T) {
	w := &fakeWarehouse{result: goldTable(t)}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{CacheTTL: 30 * time.Second})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Heatmap(context.Background())
	require.NoError(t, err)
	_, err = svc.Hex3D(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, w.calls)

	now = now.Add(31 * time.Second)
	_, err = svc.Heatmap(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, w.calls)
}

func TestLoad_CallerCancellationDoesNotFailSharedLoad(t *testing.T) {
	w := &fakeWarehouse{result: goldTable(t)}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	view, err := svc.Heatmap(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, view.RowCount)
	require.Equal(t, 1, w.calls)
}

func TestLoad_FailureIsNotCached(t *testing.T) {
	w := &fakeWarehouse{err: errors.New("timeout")}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	_, err := svc.Heatmap(context.Background())
	require.Error(t, err)

	w.mu.Lock()
	w.err, w.result = nil, goldTable(t)
	w.mu.Unlock()

	_, err = svc.Heatmap(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, w.calls)
}

func TestHex3D_FiltersAndStyles(t *testing.T) {
	svc := newTestMapService(t, &fakeWarehouse{result: goldTable(t)}, defaultParams(), MapConfig{})

	view, err := svc.Hex3D(context.Background(), domain.FilterSelection{"bairro": {"Centro"}})
	require.NoError(t, err)
	require.Equal(t, Hex3DOK, view.State)
	require.Equal(t, 12.0, view.TotalClients)
	require.Equal(t, 1, view.RowCount)

	require.Equal(t, []string{"F", "M"}, view.Options["genero_cliente"])
	require.Equal(t, []string{"Centro", "Zona Sul"}, view.Options["bairro"])
	require.Equal(t, []string{"0-30", "31-60"}, view.Options["faixa_divida"])

	require.NotNil(t, view.Deck)
	require.Len(t, view.Deck.Layers, 1)
	layer := view.Deck.Layers[0]
	require.Equal(t, "H3HexagonLayer", layer["@@type"])
	records := layer["data"].([]map[string]any)
	require.Len(t, records, 1)
	require.Equal(t, "8828308299fffff", records[0]["h3"])
	require.Equal(t, [4]int{255, 0, 0, 180}, records[0][render.FillColorField])
}

func TestHex3D_NoMatchIsNotAnError(t *testing.T) {
	svc := newTestMapService(t, &fakeWarehouse{result: goldTable(t)}, defaultParams(), MapConfig{})

	view, err := svc.Hex3D(context.Background(), domain.FilterSelection{"bairro": {"Moema"}})
	require.NoError(t, err)
	require.Equal(t, Hex3DNoMatch, view.State)
	require.Zero(t, view.RowCount)
	require.Nil(t, view.Deck)
	require.NotEmpty(t, view.Options["bairro"])
}

func TestHex3D_EmptySelectionKeepsAllCompleteRows(t *testing.T) {
	svc := newTestMapService(t, &fakeWarehouse{result: goldTable(t)}, defaultParams(), MapConfig{})

	view, err := svc.Hex3D(context.Background(), domain.FilterSelection{"bairro": {}, "unknown": {"x"}})
	require.NoError(t, err)
	// The "abc" debt row is dropped; the null-h3 row is dropped.
	require.Equal(t, 2, view.RowCount)
}

func TestHex3D_ZeroMaximumUsesDenominatorOne(t *testing.T) {
	w := &fakeWarehouse{result: table(t,
		col("h3", "8828308299fffff", "8828308281fffff"),
		col("contagem_clientes", 0.0, int64(0)),
		col("valor_inadimplencia", 10.0, 20.0),
		col("genero_cliente", "F", "M"),
		col("bairro", "Centro", "Centro"),
		col("faixa_divida", "0-30", "0-30"),
	)}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	view, err := svc.Hex3D(context.Background(), nil)
	require.NoError(t, err)
	records := view.Deck.Layers[0]["data"].([]map[string]any)
	for _, r := range records {
		require.Equal(t, [4]int{255, 255, 0, 180}, r[render.FillColorField])
	}
}

func TestHex3D_MissingColumns(t *testing.T) {
	w := &fakeWarehouse{result: table(t,
		col("h3", "8828308299fffff"),
		col("contagem_clientes", 1.0),
		col("genero_cliente", "F"),
		col("bairro", "Centro"),
		col("faixa_divida", "0-30"),
	)}
	svc := newTestMapService(t, w, defaultParams(), MapConfig{})

	_, err := svc.Hex3D(context.Background(), nil)
	requireUsecaseError(t, err, ErrorSchemaViolation, "missing_column")

	// The heatmap does not need the debt measure and still renders.
	view, err := svc.Heatmap(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, view.RowCount)
}

func TestDashboard(t *testing.T) {
	p := defaultParams()
	svc := newTestMapService(t, &fakeWarehouse{}, p, MapConfig{})

	url, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://example.cloud.databricks.com/embed/dashboardsv3/abc", url)

	_, err = svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)
}

func TestDashboard_NotConfigured(t *testing.T) {
	svc := newTestMapService(t, &fakeWarehouse{}, &mockParams{vals: map[string]string{}}, MapConfig{})

	_, err := svc.Dashboard(context.Background())
	requireUsecaseError(t, err, ErrorNoData, "dashboard_not_configured")
}
