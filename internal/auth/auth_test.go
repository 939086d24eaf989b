package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" || r.Header.Get("apikey") != "anon-key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "user-123", "email": "a@example.com"})
		case "Bearer no-id":
			_ = json.NewEncoder(w).Encode(map[string]string{"email": "a@example.com"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteVerifier(t *testing.T) {
	srv := identityServer(t)
	v, err := NewRemoteVerifier(srv.URL+"/", "anon-key", time.Second)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr error
	}{
		{"valid token", "good-token", "user-123", nil},
		{"rejected token", "expired", "", ragerr.ErrInvalidCredentials},
		{"response without id", "no-id", "", ragerr.ErrInvalidCredentials},
		{"empty token", "", "", ragerr.ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, ragerr.KindUnauthenticated, ragerr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteVerifier_Unreachable(t *testing.T) {
	srv := identityServer(t)
	url := srv.URL
	srv.Close()

	v, err := NewRemoteVerifier(url, "anon-key", time.Second)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), "good-token")
	assert.ErrorIs(t, err, ragerr.ErrInvalidCredentials)
}

func TestNewRemoteVerifier_RequiresURL(t *testing.T) {
	_, err := NewRemoteVerifier("", "", 0)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFlexible, m)

	m, err = ParseMode("bearer")
	require.NoError(t, err)
	assert.Equal(t, ModeBearer, m)

	_, err = ParseMode("basic")
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestMiddleware(t *testing.T) {
	verifier := StaticVerifier{"good-token": "user-123"}

	tests := []struct {
		name          string
		mode          Mode
		verifier      Verifier
		authorization string
		tenantHeader  string
		wantTenant    string
		wantErr       error
	}{
		{name: "header mode", mode: ModeHeader, tenantHeader: "acme", wantTenant: "acme"},
		{name: "header mode ignores bearer", mode: ModeHeader, verifier: verifier, authorization: "Bearer good-token", tenantHeader: "acme", wantTenant: "acme"},
		{name: "header mode missing", mode: ModeHeader, wantErr: ragerr.ErrMissingCredentials},
		{name: "header mode invalid tenant", mode: ModeHeader, tenantHeader: "bad tenant!", wantErr: ragerr.ErrInvalidTenant},
		{name: "bearer mode", mode: ModeBearer, verifier: verifier, authorization: "Bearer good-token", wantTenant: "user-123"},
		{name: "bearer mode ignores header", mode: ModeBearer, verifier: verifier, tenantHeader: "acme", wantErr: ragerr.ErrMissingCredentials},
		{name: "bearer mode bad token", mode: ModeBearer, verifier: verifier, authorization: "Bearer nope", wantErr: ragerr.ErrInvalidCredentials},
		{name: "bearer mode bad format", mode: ModeBearer, verifier: verifier, authorization: "Token good-token", wantErr: ragerr.ErrInvalidCredentials},
		{name: "flexible prefers bearer", mode: ModeFlexible, verifier: verifier, authorization: "Bearer good-token", tenantHeader: "acme", wantTenant: "user-123"},
		{name: "flexible falls back to header", mode: ModeFlexible, verifier: verifier, tenantHeader: "acme", wantTenant: "acme"},
		{name: "flexible bad bearer does not fall back", mode: ModeFlexible, verifier: verifier, authorization: "Bearer nope", tenantHeader: "acme", wantErr: ragerr.ErrInvalidCredentials},
		{name: "flexible without verifier", mode: ModeFlexible, authorization: "Bearer good-token", wantErr: ErrVerifierUnavailable},
		{name: "flexible nothing", mode: ModeFlexible, verifier: verifier, wantErr: ragerr.ErrMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
			if tt.authorization != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.authorization)
			}
			if tt.tenantHeader != "" {
				req.Header.Set(HeaderTenantID, tt.tenantHeader)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var gotTenant, gotCtxTenant string
			handler := Middleware(tt.mode, tt.verifier, nil)(func(c echo.Context) error {
				var err error
				gotTenant, err = TenantID(c)
				require.NoError(t, err)
				gotCtxTenant, err = tenant.FromContext(c.Request().Context())
				require.NoError(t, err)
				return c.NoContent(http.StatusNoContent)
			})

			err := handler(c)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, gotTenant, "handler must not run")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTenant, gotTenant)
			assert.Equal(t, tt.wantTenant, gotCtxTenant)
		})
	}
}
