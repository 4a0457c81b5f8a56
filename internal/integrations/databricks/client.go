// Package databricks talks to a Databricks workspace through the official
// SDK: the SQL Statement Execution API (warehouse queries) and the Genie
// conversation API.
package databricks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdk "github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/apierr"
	"github.com/databricks/databricks-sdk-go/retries"
	"github.com/databricks/databricks-sdk-go/service/dashboards"
	"github.com/databricks/databricks-sdk-go/service/sql"

	"delinquency-map/internal/integrations/paramstore"
)

const (
	defaultPollInterval = time.Second
	defaultWaitTimeout  = 2 * time.Minute
)

// credentialsPayload is the JSON shape stored in SSM for the service principal.
type credentialsPayload struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// genieAPI is the slice of the SDK's Genie service this package uses.
type genieAPI interface {
	StartConversationAndWait(ctx context.Context, req dashboards.GenieStartConversationMessageRequest, opts ...retries.Option[dashboards.GenieMessage]) (*dashboards.GenieMessage, error)
	CreateMessageAndWait(ctx context.Context, req dashboards.GenieCreateConversationMessageRequest, opts ...retries.Option[dashboards.GenieMessage]) (*dashboards.GenieMessage, error)
	GetMessageQueryResult(ctx context.Context, req dashboards.GenieGetMessageQueryResultRequest) (*dashboards.GenieGetMessageQueryResultResponse, error)
}

// statementAPI is the slice of the SDK's Statement Execution service this
// package uses.
type statementAPI interface {
	ExecuteStatement(ctx context.Context, req sql.ExecuteStatementRequest) (*sql.StatementResponse, error)
	GetStatement(ctx context.Context, req sql.GetStatementRequest) (*sql.StatementResponse, error)
	GetStatementResultChunkN(ctx context.Context, req sql.GetStatementResultChunkNRequest) (*sql.ResultData, error)
}

// HTTPStatusError captures non-2xx workspace responses.
type HTTPStatusError struct {
	StatusCode int
	ErrorCode  string
	Body       string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("databricks: unexpected status %d (%s): %s", e.StatusCode, e.ErrorCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// statusError converts SDK API errors into *HTTPStatusError so callers can
// branch on the status code without importing the SDK.
func statusError(err error) error {
	var apiErr *apierr.APIError
	if errors.As(err, &apiErr) {
		return &HTTPStatusError{
			StatusCode: apiErr.StatusCode,
			ErrorCode:  apiErr.ErrorCode,
			Body:       apiErr.Message,
			Err:        err,
		}
	}
	return err
}

// Client wraps a workspace client authenticated with OAuth M2M.
type Client struct {
	host         string
	getter       Getter
	paramPrefix  string
	pollInterval time.Duration
	waitTimeout  time.Duration

	mu         sync.Mutex
	genie      genieAPI
	statements statementAPI
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithWaitTimeout bounds how long a single statement or assistant message is
// polled before giving up.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// WithWorkspaceClient uses w instead of building one from the SSM-backed
// service principal credentials.
func WithWorkspaceClient(w *sdk.WorkspaceClient) Option {
	return func(c *Client) {
		if w != nil {
			c.genie = w.Genie
			c.statements = w.StatementExecution
		}
	}
}

func withAPIs(genie genieAPI, statements statementAPI) Option {
	return func(c *Client) {
		c.genie = genie
		c.statements = statements
	}
}

// NewClient creates a Client for the workspace at host. Service principal
// credentials are read from SSM on the first request and reused for the
// lifetime of the process.
func NewClient(ps Getter, paramPrefix, host string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("databricks: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("databricks: parameter prefix must not be empty")
	}
	host = normalizeHost(host)
	if host == "" {
		return nil, errors.New("databricks: host must not be empty")
	}
	c := &Client{
		host:         host,
		getter:       ps,
		paramPrefix:  paramPrefix,
		pollInterval: defaultPollInterval,
		waitTimeout:  defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func normalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host
}

func (c *Client) credentialsParameterName() string {
	return c.paramPrefix + "/databricks-credentials"
}

// workspace builds the SDK workspace client on first use. A failed attempt
// is retried on the next call; the SDK caches OAuth tokens until they expire.
func (c *Client) workspace(ctx context.Context) (genieAPI, statementAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.genie != nil && c.statements != nil {
		return c.genie, c.statements, nil
	}
	creds, err := fetchCredentials(ctx, c.getter, c.credentialsParameterName())
	if err != nil {
		return nil, nil, err
	}
	w, err := sdk.NewWorkspaceClient(&sdk.Config{
		Host:         c.host,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		AuthType:     "oauth-m2m",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("databricks: create workspace client: %w", err)
	}
	c.genie = w.Genie
	c.statements = w.StatementExecution
	return c.genie, c.statements, nil
}

func fetchCredentials(ctx context.Context, getter Getter, name string) (credentialsPayload, error) {
	var creds credentialsPayload
	if err := paramstore.GetJSON(ctx, getter, name, &creds); err != nil {
		return credentialsPayload{}, fmt.Errorf("databricks: load credentials: %w", err)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return credentialsPayload{}, errors.New("databricks: client credentials are empty")
	}
	return creds, nil
}

// sleep waits for the poll interval or until ctx is done.
func (c *Client) sleep(ctx context.Context) error {
	t := time.NewTimer(c.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
