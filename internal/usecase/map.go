package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"delinquency-map/internal/domain"
	"delinquency-map/internal/geo"
	"delinquency-map/internal/integrations/paramstore"
	"delinquency-map/internal/render"
)

const (
	ColumnClients  = "contagem_clientes"
	ColumnDebt     = "valor_inadimplencia"
	ColumnGender   = "genero_cliente"
	ColumnDistrict = "bairro"
	ColumnDebtBand = "faixa_divida"

	defaultCacheTTL = 30 * time.Second
)

// FilterColumns are the categorical columns the 3-D view can be filtered on,
// in display order.
var FilterColumns = []string{ColumnGender, ColumnDistrict, ColumnDebtBand}

var (
	heatmapRequired = []string{geo.HexColumn, ColumnClients, ColumnGender, ColumnDistrict, ColumnDebtBand}
	hex3DRequired   = []string{geo.HexColumn, ColumnClients, ColumnDebt}

	tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+){0,2}$`)
)

// WarehouseClient runs SQL against the analytics warehouse.
type WarehouseClient interface {
	ExecuteStatement(ctx context.Context, warehouseID, statement string) (domain.TabularResult, error)
}

type MapConfig struct {
	WarehouseID string
	DataTable   string
	// SpatialColumn names the H3 column. Empty falls back to scanning for
	// a column whose name contains "h3".
	SpatialColumn string
	CacheTTL      time.Duration
	ParamPrefix   string
}

// MapService serves the two map views and the dashboard embed. Every view
// starts from the same cached warehouse result and fails on its own.
type MapService struct {
	warehouse WarehouseClient
	params    ParamGetter
	styles    render.Styles
	cfg       MapConfig
	now       func() time.Time

	group    singleflight.Group
	cacheMu  sync.Mutex
	cached   domain.TabularResult
	cachedAt time.Time
	hasCache bool

	dashMu       sync.RWMutex
	dashboardURL string
}

type HeatmapView struct {
	TotalClients float64
	RowCount     int
	Data         []map[string]any
	Config       map[string]any
}

type Hex3DState string

const (
	Hex3DOK      Hex3DState = "ok"
	Hex3DNoMatch Hex3DState = "no_match"
)

type Hex3DView struct {
	State        Hex3DState
	TotalClients float64
	RowCount     int
	Options      map[string][]string
	Deck         *render.Deck
}

func NewMapService(w WarehouseClient, p ParamGetter, styles render.Styles, cfg MapConfig) (*MapService, error) {
	if w == nil {
		return nil, errors.New("usecase: warehouse client must not be nil")
	}
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if strings.TrimSpace(cfg.WarehouseID) == "" {
		return nil, errors.New("usecase: warehouse id must not be empty")
	}
	if !tableNamePattern.MatchString(cfg.DataTable) {
		return nil, fmt.Errorf("usecase: invalid data table name %q", cfg.DataTable)
	}
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	if cfg.ParamPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &MapService{
		warehouse: w,
		params:    p,
		styles:    styles,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Heatmap builds the flat H3 heatmap: every complete row plus the Kepler.gl
// config keyed on the canonical "h3" column.
func (s *MapService) Heatmap(ctx context.Context) (HeatmapView, error) {
	raw, err := s.load(ctx)
	if err != nil {
		return HeatmapView{}, err
	}

	normalized, err := s.normalize(raw)
	if err != nil {
		return HeatmapView{}, err
	}
	complete, err := geo.DropIncomplete(normalized, heatmapRequired)
	if err != nil {
		return HeatmapView{}, newError(ErrorSchemaViolation, "missing_column", err)
	}
	if dropped := normalized.Len() - complete.Len(); dropped > 0 {
		slog.DebugContext(ctx, "heatmap rows dropped", "dropped", dropped, "kept", complete.Len())
	}

	return HeatmapView{
		TotalClients: totalClients(raw),
		RowCount:     complete.Len(),
		Data:         complete.Records(),
		Config:       render.KeplerConfig(s.styles.Heatmap, geo.HexColumn),
	}, nil
}

// Hex3D builds the extruded view restricted to selection. No matching row is
// a state of the view, not an error.
func (s *MapService) Hex3D(ctx context.Context, selection domain.FilterSelection) (Hex3DView, error) {
	raw, err := s.load(ctx)
	if err != nil {
		return Hex3DView{}, err
	}

	normalized, err := s.normalize(raw)
	if err != nil {
		return Hex3DView{}, err
	}
	if err := geo.RequireColumns(normalized, append(hex3DRequired, FilterColumns...)...); err != nil {
		return Hex3DView{}, newError(ErrorSchemaViolation, "missing_column", err)
	}
	normalized = normalized.WithColumn(ColumnDebt, geo.CoerceNumeric(mustColumn(normalized, ColumnDebt)))

	complete, err := geo.DropIncomplete(normalized, hex3DRequired)
	if err != nil {
		return Hex3DView{}, newError(ErrorSchemaViolation, "missing_column", err)
	}

	options := make(map[string][]string, len(FilterColumns))
	for _, name := range FilterColumns {
		options[name] = geo.DistinctValues(complete, name)
	}

	filtered, err := geo.ApplyFilters(complete, restrictTo(selection, FilterColumns))
	if err != nil {
		return Hex3DView{}, newError(ErrorSchemaViolation, "missing_column", err)
	}

	view := Hex3DView{
		State:        Hex3DOK,
		TotalClients: totalClients(raw),
		RowCount:     filtered.Len(),
		Options:      options,
	}
	if filtered.Len() == 0 {
		view.State = Hex3DNoMatch
		return view, nil
	}

	counts := mustColumn(filtered, ColumnClients)
	denominator := geo.Denominator(counts)
	colors := make([]any, len(counts))
	for i, v := range counts {
		colors[i] = geo.FillColor(v.(float64), denominator)
	}
	filtered = filtered.WithColumn(render.FillColorField, colors)

	deck := render.HexagonDeck(s.styles.Hex3D, filtered.Records(), geo.HexColumn, ColumnDebt)
	view.Deck = &deck
	return view, nil
}

// Dashboard returns the AI/BI dashboard embed URL.
func (s *MapService) Dashboard(ctx context.Context) (string, error) {
	s.dashMu.RLock()
	url := s.dashboardURL
	s.dashMu.RUnlock()
	if url != "" {
		return url, nil
	}

	url, err := paramstore.GetString(ctx, s.params, s.cfg.ParamPrefix+"/config/dashboard_embed_url")
	if err != nil {
		return "", newError(ErrorNoData, "dashboard_not_configured", err)
	}

	s.dashMu.Lock()
	s.dashboardURL = url
	s.dashMu.Unlock()
	return url, nil
}

// normalize locates the spatial column, writes its canonical form to "h3"
// and coerces the client count.
func (s *MapService) normalize(raw domain.TabularResult) (domain.TabularResult, error) {
	raw = geo.ScrubNonFinite(raw)
	spatial, err := geo.LocateSpatialColumn(raw, s.cfg.SpatialColumn)
	if err != nil {
		return domain.TabularResult{}, newError(ErrorSchemaViolation, "spatial_column_not_found", err)
	}
	hexIDs, _ := raw.Column(spatial)
	out := raw.WithColumn(geo.HexColumn, geo.CanonicalizeColumn(hexIDs.Values))

	counts, ok := out.Column(ColumnClients)
	if !ok {
		return domain.TabularResult{}, newError(ErrorSchemaViolation, "missing_column",
			fmt.Errorf("%w: %q", geo.ErrMissingColumn, ColumnClients))
	}
	return out.WithColumn(ColumnClients, geo.CoerceNumeric(counts.Values)), nil
}

// load returns the warehouse result, reusing it for CacheTTL. Concurrent
// misses share one statement execution.
func (s *MapService) load(ctx context.Context) (domain.TabularResult, error) {
	s.cacheMu.Lock()
	if s.hasCache && s.now().Sub(s.cachedAt) < s.cfg.CacheTTL {
		cached := s.cached
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	// The shared load outlives any one caller, so a caller's cancellation must
	// not fail the others waiting on it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do("data", func() (any, error) {
		result, err := s.warehouse.ExecuteStatement(loadCtx, s.cfg.WarehouseID, "SELECT * FROM "+s.cfg.DataTable)
		if err != nil {
			return nil, err
		}
		s.cacheMu.Lock()
		s.cached, s.cachedAt, s.hasCache = result, s.now(), true
		s.cacheMu.Unlock()
		return result, nil
	})
	if err != nil {
		return domain.TabularResult{}, upstreamError("warehouse_error", err)
	}

	result := v.(domain.TabularResult)
	if result.Len() == 0 {
		return domain.TabularResult{}, newError(ErrorNoData, "empty_result", nil)
	}
	return result, nil
}

func totalClients(raw domain.TabularResult) float64 {
	c, ok := raw.Column(ColumnClients)
	if !ok {
		return 0
	}
	return geo.Sum(c.Values)
}

// restrictTo drops selection entries for columns outside allowed.
func restrictTo(selection domain.FilterSelection, allowed []string) domain.FilterSelection {
	out := make(domain.FilterSelection, len(allowed))
	for _, name := range allowed {
		if accepted := selection[name]; len(accepted) > 0 {
			out[name] = accepted
		}
	}
	return out
}

func mustColumn(t domain.TabularResult, name string) []any {
	c, _ := t.Column(name)
	return c.Values
}
