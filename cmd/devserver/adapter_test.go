package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

func TestHTTPAdapter_TranslatesRequestAndResponse(t *testing.T) {
	var got events.APIGatewayProxyRequest
	adapter := newHTTPAdapter(func(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		got = req
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusCreated,
			Headers:    map[string]string{"X-Correlation-Id": "corr-1"},
			Body:       `{"ok":true}`,
		}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/maps/hex3d?bairro=Centro&bairro=S%C3%A9&genero_cliente=F", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("X-Correlation-Id", "corr-in")
	rec := httptest.NewRecorder()
	adapter.ServeHTTP(rec, req)

	require.Equal(t, http.MethodPost, got.HTTPMethod)
	require.Equal(t, "/maps/hex3d", got.Path)
	require.Equal(t, []string{"Centro", "Sé"}, got.MultiValueQueryStringParameters["bairro"])
	require.Equal(t, "F", got.QueryStringParameters["genero_cliente"])
	require.Equal(t, "corr-in", got.Headers["X-Correlation-Id"])
	require.Equal(t, `{"question":"q"}`, got.Body)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "corr-1", rec.Header().Get("X-Correlation-Id"))
	require.Equal(t, `{"ok":true}`, rec.Body.String())
}

func TestHTTPAdapter_HandlerError(t *testing.T) {
	adapter := newHTTPAdapter(func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return events.APIGatewayProxyResponse{}, errors.New("boom")
	})

	rec := httptest.NewRecorder()
	adapter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoadStyles(t *testing.T) {
	styles, err := loadStyles("")
	require.NoError(t, err)
	require.NotEmpty(t, styles.Heatmap.LayerID)

	_, err = loadStyles("/nonexistent/styles.yaml")
	require.ErrorContains(t, err, "read styles")
}
