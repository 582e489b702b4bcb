package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/clinicdesk/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/clinicdesk/internal/reliability/retry"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. http://127.0.0.1:5000.
	BaseURL string
	// Timeout bounds every request. Zero means no client-side bound.
	Timeout time.Duration
	// ReadAttempts is how many times a GET is tried. Writes are tried once.
	ReadAttempts int
	// Breaker fails requests fast while the backend is down. Nil disables it.
	Breaker *circuitbreaker.CircuitBreaker
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
	// OmitDraftID leaves the placeholder id out of registration requests so
	// the backend assigns one.
	OmitDraftID bool
	Logger      *slog.Logger
}

// Client talks to the clinic REST backend. It implements domain.Gateway.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	readRetry   *retry.Config
	omitDraftID bool
	logger      *slog.Logger
}

// New creates a gateway client
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("gateway base url is empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	readRetry := retry.DefaultConfig()
	if opts.ReadAttempts > 1 {
		readRetry.MaxAttempts = opts.ReadAttempts
	}
	readRetry.ShouldRetry = func(err error) bool {
		return errors.Is(err, domain.ErrUnavailable) && !errors.Is(err, circuitbreaker.ErrOpen)
	}

	if opts.Breaker != nil {
		opts.Breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
			logger.Warn("gateway circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.ObserveBreakerTransition(from.String(), to.String())
		})
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   opts.Timeout,
		},
		breaker:     opts.Breaker,
		readRetry:   readRetry,
		omitDraftID: opts.OmitDraftID,
		logger:      logger,
	}, nil
}

// ListPrograms fetches every program.
func (c *Client) ListPrograms(ctx context.Context) ([]domain.Program, error) {
	return read(ctx, c, "list_programs", "failed to fetch programs", "/api/programs", func(out *[]domain.Program) {
		*out = domain.NormalizePrograms(*out)
	})
}

// CreateProgram creates a program named name.
func (c *Client) CreateProgram(ctx context.Context, name string) (*domain.Program, error) {
	body := struct {
		Name string `json:"name"`
	}{Name: name}

	var created domain.Program
	ok, err := c.do(ctx, "create_program", "failed to create program", http.MethodPost, "/api/programs", body, &created)
	if err != nil {
		return nil, err
	}
	if !ok || created.Name == "" {
		created.Name = name
	}
	return &created, nil
}

// ListClients fetches every client.
func (c *Client) ListClients(ctx context.Context) ([]domain.Client, error) {
	return read(ctx, c, "list_clients", "failed to fetch clients", "/api/clients", func(out *[]domain.Client) {
		if *out == nil {
			*out = []domain.Client{}
		}
	})
}

// registration is the POST /api/clients body.
type registration struct {
	ID       string           `json:"id,omitempty"`
	Name     string           `json:"name"`
	Age      domain.Age       `json:"age"`
	Gender   string           `json:"gender"`
	Contact  string           `json:"contact"`
	Programs []domain.Program `json:"programs"`
}

// CreateClient registers client. The returned client carries the id the
// backend assigned; when the response has no body the request is echoed.
func (c *Client) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	body := registration{
		ID:       client.ID,
		Name:     client.Name,
		Age:      client.Age,
		Gender:   client.Gender,
		Contact:  client.Contact,
		Programs: []domain.Program{},
	}
	if c.omitDraftID {
		body.ID = ""
	}

	var created domain.Client
	ok, err := c.do(ctx, "create_client", "failed to register client", http.MethodPost, "/api/clients", body, &created)
	if err != nil {
		return nil, err
	}
	if !ok {
		created = client.Clone()
		created.Programs = []domain.Program{}
	}
	if created.ID == "" {
		created.ID = body.ID
	}
	return &created, nil
}

// GetClient fetches one client by id. A 404 wraps domain.ErrNotFound.
func (c *Client) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	client, err := read[domain.Client](ctx, c, "get_client", "failed to fetch client", "/api/clients/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// EnrollClient replaces the client's program set with programs. The backend
// treats the body as the full set, so callers send the union.
func (c *Client) EnrollClient(ctx context.Context, id string, programs []string) (*domain.Client, error) {
	body := struct {
		Programs []string `json:"programs"`
	}{Programs: domain.CleanProgramNames(programs)}

	var updated domain.Client
	ok, err := c.do(ctx, "enroll_client", "failed to enroll client", http.MethodPut,
		"/api/clients/"+url.PathEscape(id)+"/enroll", body, &updated)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &updated, nil
}

// read performs a GET with the read retry policy and applies fix to the
// decoded value.
func read[T any](ctx context.Context, c *Client, op, msg, path string, fix func(*T)) (T, error) {
	return retry.Do(ctx, c.readRetry, c.logger, op, func(ctx context.Context) (T, error) {
		var out T
		if _, err := c.do(ctx, op, msg, http.MethodGet, path, nil, &out); err != nil {
			return out, err
		}
		if fix != nil {
			fix(&out)
		}
		return out, nil
	})
}

// do sends one request and decodes a 2xx body into out. It reports whether a
// body was present. Every failure is a *domain.GatewayError.
func (c *Client) do(ctx context.Context, op, msg, method, path string, in, out any) (bool, error) {
	start := time.Now()

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			metrics.ObserveGatewayRequest(op, "breaker_open", 0)
			return false, &domain.GatewayError{Op: msg, Err: fmt.Errorf("%w: %w", domain.ErrUnavailable, err)}
		}
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return false, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		metrics.ObserveGatewayRequest(op, "transport_error", time.Since(start))
		c.logger.Debug("gateway request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return false, &domain.GatewayError{Op: msg, Err: fmt.Errorf("%w: %w", domain.ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.recordFailure()
		metrics.ObserveGatewayRequest(op, "transport_error", time.Since(start))
		return false, &domain.GatewayError{Op: msg, Err: fmt.Errorf("%w: reading response: %w", domain.ErrUnavailable, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			c.recordFailure()
		} else {
			c.recordSuccess()
		}
		metrics.ObserveGatewayRequest(op, fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		c.logger.Debug("gateway request rejected",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
		)
		return false, &domain.GatewayError{Op: msg, StatusCode: resp.StatusCode, Err: statusError(resp.StatusCode)}
	}

	c.recordSuccess()
	metrics.ObserveGatewayRequest(op, "success", time.Since(start))

	if len(bytes.TrimSpace(data)) == 0 {
		if method == http.MethodGet {
			return false, &domain.GatewayError{Op: msg, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: empty response body", domain.ErrRejected)}
		}
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, &domain.GatewayError{Op: msg, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: malformed response: %w", domain.ErrRejected, err)}
	}
	return true, nil
}

func (c *Client) recordFailure() {
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}

func statusError(code int) error {
	switch {
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	case code == http.StatusConflict:
		return domain.ErrConflict
	case code >= 500:
		return domain.ErrUnavailable
	default:
		return domain.ErrRejected
	}
}
