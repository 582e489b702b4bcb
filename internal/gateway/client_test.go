package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/clinicdesk/internal/reliability/circuitbreaker"
)

func newTestClient(t *testing.T, h http.Handler, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts := Options{BaseURL: srv.URL + "/", Timeout: 2 * time.Second, Logger: logger.Discard()}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestListProgramsAcceptsBothWireForms(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/programs", r.URL.Path)
		_, _ = io.WriteString(w, `[{"name":" TB "},"Malaria",{"name":"TB"}]`)
	}), nil)

	programs, err := c.ListPrograms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TB", "Malaria"}, domain.ProgramNames(programs))
}

func TestListClientsNormalizesPrograms(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"C1","name":"Asha","age":30,"programs":null},{"id":"C2","name":"Natasha","age":"41","programs":["TB","TB"]}]`)
	}), nil)

	clients, err := c.ListClients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, domain.Age("30"), clients[0].Age)
	assert.NotNil(t, clients[0].Programs)
	assert.Empty(t, clients[0].Programs)
	assert.Equal(t, []string{"TB"}, domain.ProgramNames(clients[1].Programs))
}

func TestCreateClientSendsEmptyPrograms(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"srv-1","name":"Asha","age":30,"programs":[]}`)
	}), nil)

	created, err := c.CreateClient(context.Background(), domain.Client{ID: "CLIENT42", Name: "Asha", Age: "30"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created.ID)
	assert.Equal(t, "CLIENT42", got["id"])
	assert.Equal(t, []any{}, got["programs"])
	assert.Equal(t, float64(30), got["age"])
}

func TestCreateClientOmitDraftID(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"srv-9","name":"Asha","age":30}`)
	}), func(o *Options) { o.OmitDraftID = true })

	created, err := c.CreateClient(context.Background(), domain.Client{ID: "CLIENT42", Name: "Asha", Age: "30"})
	require.NoError(t, err)
	assert.Equal(t, "srv-9", created.ID)
	_, hasID := got["id"]
	assert.False(t, hasID)
}

func TestCreateClientEmptyBodyEchoesRequest(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), nil)

	created, err := c.CreateClient(context.Background(), domain.Client{ID: "CLIENT7", Name: "Asha", Age: "30"})
	require.NoError(t, err)
	assert.Equal(t, "CLIENT7", created.ID)
	assert.Equal(t, "Asha", created.Name)
}

func TestEnrollClientSendsFullSet(t *testing.T) {
	var got struct {
		Programs []string `json:"programs"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/clients/C%201/enroll", r.URL.EscapedPath())
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"C 1","name":"Asha","age":30,"programs":["TB","HIV"]}`)
	}), nil)

	updated, err := c.EnrollClient(context.Background(), "C 1", []string{"TB", " HIV", "TB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TB", "HIV"}, got.Programs)
	assert.Equal(t, []string{"TB", "HIV"}, domain.ProgramNames(updated.Programs))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusConflict, domain.ErrConflict},
		{http.StatusBadRequest, domain.ErrRejected},
		{http.StatusInternalServerError, domain.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"error":"nope"}`)
			}), nil)

			_, err := c.GetClient(context.Background(), "C1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var gwErr *domain.GatewayError
			require.True(t, errors.As(err, &gwErr))
			assert.Equal(t, tc.status, gwErr.StatusCode)
			assert.Equal(t, "failed to fetch client", gwErr.Op)
		})
	}
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Timeout: time.Second, Logger: logger.Discard()})
	require.NoError(t, err)

	_, err = c.ListPrograms(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.True(t, domain.IsGatewayError(err))
}

func TestMalformedBodyIsRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}), nil)

	_, err := c.ListClients(context.Background())
	assert.ErrorIs(t, err, domain.ErrRejected)
}

func TestReadsRetryButWritesDoNot(t *testing.T) {
	var reads, writes atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if reads.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = io.WriteString(w, `["TB"]`)
			return
		}
		writes.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), func(o *Options) { o.ReadAttempts = 3 })

	programs, err := c.ListPrograms(context.Background())
	require.NoError(t, err)
	assert.Len(t, programs, 1)
	assert.Equal(t, int32(3), reads.Load())

	_, err = c.CreateProgram(context.Background(), "TB")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, int32(1), writes.Load())
}

func TestOpenBreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	breaker := circuitbreaker.New(circuitbreaker.Settings{FailureThreshold: 2, OpenTimeout: time.Minute})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), func(o *Options) { o.Breaker = breaker })

	for range 2 {
		_, err := c.ListClients(context.Background())
		require.Error(t, err)
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, err := c.ListClients(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewRejectsEmptyBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
