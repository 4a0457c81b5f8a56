package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const maxBodyBytes = 1 << 20

type proxyFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// newHTTPAdapter serves net/http requests through an API Gateway proxy
// handler, the way the REST API integration would invoke it.
func newHTTPAdapter(fn proxyFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		resp, err := fn(r.Context(), toProxyRequest(r, body))
		if err != nil {
			slog.ErrorContext(r.Context(), "proxy handler failed", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		for k, values := range resp.MultiValueHeaders {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.WriteString(w, resp.Body)
	})
}

func toProxyRequest(r *http.Request, body []byte) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(r.Header))
	multiHeaders := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		multiHeaders[k] = v
		if len(v) > 0 {
			headers[k] = v[len(v)-1]
		}
	}

	query := r.URL.Query()
	params := make(map[string]string, len(query))
	multiParams := make(map[string][]string, len(query))
	for k, v := range query {
		multiParams[k] = v
		if len(v) > 0 {
			params[k] = v[len(v)-1]
		}
	}

	return events.APIGatewayProxyRequest{
		HTTPMethod:                      r.Method,
		Path:                            r.URL.Path,
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           params,
		MultiValueQueryStringParameters: multiParams,
		Body:                            string(body),
	}
}
