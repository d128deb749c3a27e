package manager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/update-manager/internal/domain/update"
)

//nolint:gochecknoinits // Keeps gin quiet for every test in the package.
func init() {
	gin.SetMode(gin.TestMode)
}

// stubService is a canned Service implementation for transport tests.
type stubService struct {
	// triggerErr is returned from Trigger.
	triggerErr error
	// triggered counts Trigger invocations.
	triggered int
	// record is returned from Status.
	record *domain.Record
}

// Trigger returns the canned error and counts the call.
func (s *stubService) Trigger(context.Context) error {
	s.triggered++

	return s.triggerErr
}

// Status returns the canned record.
func (s *stubService) Status(context.Context) *domain.Record {
	if s.record != nil {
		return s.record
	}

	return domain.Idle()
}

// doRequest runs one request through the handler and returns the recorder.
func doRequest(t *testing.T, handler http.Handler, method, path, authHeader string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	return recorder
}

// TestServer_Health verifies the liveness probe needs no auth.
func TestServer_Health(t *testing.T) {
	t.Parallel()

	handler := NewServer(new(stubService), "abc").Handler()

	resp := doRequest(t, handler, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "ok", resp.Body.String())
}

// TestServer_Status returns the current record as JSON without auth.
func TestServer_Status(t *testing.T) {
	t.Parallel()

	startedAt := time.Now().UTC().Truncate(time.Second)
	svc := &stubService{record: &domain.Record{
		Status:    domain.StatusPulling,
		StartedAt: &startedAt,
	}}

	resp := doRequest(t, NewServer(svc, "abc").Handler(), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var got domain.Record
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	require.Equal(t, domain.StatusPulling, got.Status)
	require.NotNil(t, got.StartedAt)
	require.Nil(t, got.CompletedAt)
}

// TestServer_Update_Auth covers the bearer auth matrix, including the
// unset-secret case where every request is rejected.
func TestServer_Update_Auth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		secret     string
		authHeader string
		wantCode   int
	}{
		{name: "valid token", secret: "abc", authHeader: "Bearer abc", wantCode: http.StatusOK},
		{name: "missing header", secret: "abc", authHeader: "", wantCode: http.StatusUnauthorized},
		{name: "wrong token", secret: "abc", authHeader: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", secret: "abc", authHeader: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "unset secret rejects everything", secret: "", authHeader: "Bearer abc", wantCode: http.StatusUnauthorized},
		{name: "unset secret rejects empty bearer", secret: "", authHeader: "Bearer ", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := new(stubService)

			resp := doRequest(t, NewServer(svc, tt.secret).Handler(), http.MethodPost, "/update", tt.authHeader)
			require.Equal(t, tt.wantCode, resp.Code)

			if tt.wantCode == http.StatusOK {
				require.Equal(t, 1, svc.triggered)
				require.JSONEq(t, `{"status": "started"}`, resp.Body.String())
			} else {
				require.Zero(t, svc.triggered)
			}
		})
	}
}

// TestServer_Update_Busy maps the in-progress error to 409 with the fixed body.
func TestServer_Update_Busy(t *testing.T) {
	t.Parallel()

	svc := &stubService{triggerErr: domain.ErrAlreadyInProgress}

	resp := doRequest(t, NewServer(svc, "abc").Handler(), http.MethodPost, "/update", "Bearer abc")
	require.Equal(t, http.StatusConflict, resp.Code)
	require.JSONEq(t, `{"error": "Update already in progress"}`, resp.Body.String())
}

// TestServer_UnknownRoutes verifies anything else is a 404.
func TestServer_UnknownRoutes(t *testing.T) {
	t.Parallel()

	handler := NewServer(new(stubService), "abc").Handler()

	require.Equal(t, http.StatusNotFound, doRequest(t, handler, http.MethodGet, "/nope", "").Code)
	require.Equal(t, http.StatusNotFound, doRequest(t, handler, http.MethodPost, "/status", "").Code)
	require.Equal(t, http.StatusNotFound, doRequest(t, handler, http.MethodGet, "/update", "Bearer abc").Code)
}

// TestServer_Metrics exposes the Prometheus endpoint without auth.
func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	resp := doRequest(t, NewServer(new(stubService), "abc").Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
}
