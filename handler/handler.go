// Package handler adapts API Gateway proxy events to the ask and map
// usecases.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"delinquency-map/internal/domain"
	"delinquency-map/internal/render"
	"delinquency-map/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type AskUseCase interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
	History(ctx context.Context, sessionID string) ([]domain.Exchange, error)
}

type MapUseCase interface {
	Heatmap(ctx context.Context) (usecase.HeatmapView, error)
	Hex3D(ctx context.Context, selection domain.FilterSelection) (usecase.Hex3DView, error)
	Dashboard(ctx context.Context) (string, error)
}

type Handler struct {
	ask    AskUseCase
	maps   MapUseCase
	routes map[string]route
}

type route struct {
	method string
	serve  func(ctx context.Context, req events.APIGatewayProxyRequest) (int, any)
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
}

type askResponse struct {
	SessionID      string                  `json:"sessionId"`
	ConversationID string                  `json:"conversationId"`
	Answer         domain.NormalizedAnswer `json:"answer"`
}

type exchangeResponse struct {
	Question       string            `json:"question"`
	AnswerKind     domain.AnswerKind `json:"answerKind"`
	Answer         string            `json:"answer"`
	ConversationID string            `json:"conversationId"`
	CreatedAt      string            `json:"createdAt"`
}

type historyResponse struct {
	SessionID string             `json:"sessionId"`
	Exchanges []exchangeResponse `json:"exchanges"`
}

type heatmapResponse struct {
	TotalClients float64          `json:"totalClients"`
	RowCount     int              `json:"rowCount"`
	Data         []map[string]any `json:"data"`
	Config       map[string]any   `json:"config"`
}

type hex3DResponse struct {
	State        usecase.Hex3DState  `json:"state"`
	TotalClients float64             `json:"totalClients"`
	RowCount     int                 `json:"rowCount"`
	Options      map[string][]string `json:"options"`
	Deck         *render.Deck        `json:"deck,omitempty"`
}

type dashboardResponse struct {
	EmbedURL string `json:"embedUrl"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func NewHandler(ask AskUseCase, maps MapUseCase) (*Handler, error) {
	if ask == nil {
		return nil, errors.New("handler: ask usecase must not be nil")
	}
	if maps == nil {
		return nil, errors.New("handler: map usecase must not be nil")
	}
	h := &Handler{ask: ask, maps: maps}
	h.routes = map[string]route{
		"/ask":          {method: http.MethodPost, serve: h.serveAsk},
		"/ask/history":  {method: http.MethodGet, serve: h.serveHistory},
		"/maps/heatmap": {method: http.MethodGet, serve: h.serveHeatmap},
		"/maps/hex3d":   {method: http.MethodGet, serve: h.serveHex3D},
		"/dashboard":    {method: http.MethodGet, serve: h.serveDashboard},
	}
	return h, nil
}

// Handle routes one proxy request. Failures are reported in the response;
// the returned error is always nil so API Gateway never sees a 502 from the
// runtime.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	path := strings.TrimRight(req.Path, "/")
	var (
		status int
		body   any
	)
	rt, ok := h.routes[path]
	switch {
	case !ok:
		status, body = http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Reason: "unknown_route"}
	case !strings.EqualFold(req.HTTPMethod, rt.method):
		status, body = http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED", Reason: "method_not_allowed"}
	default:
		status, body = rt.serve(ctx, req)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "correlation_id", correlationID, "path", path, "err", err)
		status = http.StatusInternalServerError
		payload, _ = json.Marshal(errorResponse{Error: string(usecase.ErrorInternal), Reason: "encode_error"})
	}

	slog.InfoContext(ctx, "request handled", "correlation_id", correlationID, "method", req.HTTPMethod, "path", path, "status", status)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(payload),
	}, nil
}

func (h *Handler) serveAsk(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	raw, err := requestBody(req)
	if err != nil {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}
	}
	var in askRequest
	if err := json.Unmarshal(raw, &in); err != nil {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_json"}
	}

	out, err := h.ask.Ask(ctx, usecase.AskInput{Question: in.Question, SessionID: in.SessionID})
	if err != nil {
		return errorStatus(ctx, err)
	}
	return http.StatusOK, askResponse{
		SessionID:      out.SessionID,
		ConversationID: out.ConversationID,
		Answer:         out.Answer,
	}
}

func (h *Handler) serveHistory(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	sessionID := strings.TrimSpace(req.QueryStringParameters["sessionId"])
	exchanges, err := h.ask.History(ctx, sessionID)
	if err != nil {
		return errorStatus(ctx, err)
	}
	resp := historyResponse{SessionID: sessionID, Exchanges: make([]exchangeResponse, 0, len(exchanges))}
	for _, ex := range exchanges {
		resp.Exchanges = append(resp.Exchanges, exchangeResponse{
			Question:       ex.Question,
			AnswerKind:     ex.AnswerKind,
			Answer:         ex.Answer,
			ConversationID: ex.ConversationID,
			CreatedAt:      ex.CreatedAt,
		})
	}
	return http.StatusOK, resp
}

func (h *Handler) serveHeatmap(ctx context.Context, _ events.APIGatewayProxyRequest) (int, any) {
	view, err := h.maps.Heatmap(ctx)
	if err != nil {
		return errorStatus(ctx, err)
	}
	return http.StatusOK, heatmapResponse{
		TotalClients: view.TotalClients,
		RowCount:     view.RowCount,
		Data:         view.Data,
		Config:       view.Config,
	}
}

func (h *Handler) serveHex3D(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	view, err := h.maps.Hex3D(ctx, filterSelection(req))
	if err != nil {
		return errorStatus(ctx, err)
	}
	return http.StatusOK, hex3DResponse{
		State:        view.State,
		TotalClients: view.TotalClients,
		RowCount:     view.RowCount,
		Options:      view.Options,
		Deck:         view.Deck,
	}
}

func (h *Handler) serveDashboard(ctx context.Context, _ events.APIGatewayProxyRequest) (int, any) {
	url, err := h.maps.Dashboard(ctx)
	if err != nil {
		return errorStatus(ctx, err)
	}
	return http.StatusOK, dashboardResponse{EmbedURL: url}
}

// filterSelection reads repeated query parameters, falling back to the
// single-value map when API Gateway only fills that one.
func filterSelection(req events.APIGatewayProxyRequest) domain.FilterSelection {
	selection := make(domain.FilterSelection, len(usecase.FilterColumns))
	for _, name := range usecase.FilterColumns {
		values := req.MultiValueQueryStringParameters[name]
		if len(values) == 0 {
			if v, ok := req.QueryStringParameters[name]; ok {
				values = []string{v}
			}
		}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				selection[name] = append(selection[name], v)
			}
		}
	}
	return selection
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

func errorStatus(ctx context.Context, err error) (int, any) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		slog.ErrorContext(ctx, "unexpected error", "err", err)
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Reason: "unexpected_error"}
	}

	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorNoData:
		status = http.StatusNotFound
	case usecase.ErrorRateLimited:
		status = http.StatusTooManyRequests
	case usecase.ErrorUpstream, usecase.ErrorSchemaViolation:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
