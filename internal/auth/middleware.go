package auth

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HeaderTenantID carries the tenant in header and flexible modes.
const HeaderTenantID = "X-Tenant-ID"

// contextKey is the echo context key holding the resolved tenant.
const contextKey = "tenant_id"

// Mode selects how a request's tenant is resolved.
type Mode string

const (
	ModeHeader   Mode = "header"
	ModeBearer   Mode = "bearer"
	ModeFlexible Mode = "flexible"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeHeader, ModeBearer, ModeFlexible:
		return m, nil
	case "":
		return ModeFlexible, nil
	default:
		return "", fmt.Errorf("%w: unknown auth mode %q", ragerr.ErrConfiguration, s)
	}
}

// Middleware resolves the tenant and stores it in the request context, where
// tenant.FromContext and TenantID find it. verifier may be nil in header
// mode; in flexible mode a bearer token then fails with
// ErrVerifierUnavailable.
func Middleware(mode Mode, verifier Verifier, logger *logging.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()

			id, err := resolve(c, mode, verifier)
			if err != nil {
				logger.Debug(ctx, "tenant resolution failed", zap.String("mode", string(mode)), zap.Error(err))
				return err
			}

			ctx, err = tenant.WithID(ctx, id)
			if err != nil {
				return err
			}
			ctx = logging.WithTenantID(ctx, id)
			c.SetRequest(req.WithContext(ctx))
			c.Set(contextKey, id)
			return next(c)
		}
	}
}

func resolve(c echo.Context, mode Mode, verifier Verifier) (string, error) {
	header := c.Request().Header
	authorization := header.Get(echo.HeaderAuthorization)
	tenantHeader := strings.TrimSpace(header.Get(HeaderTenantID))

	switch mode {
	case ModeHeader:
		if tenantHeader == "" {
			return "", fmt.Errorf("%w: %s header missing", ragerr.ErrMissingCredentials, HeaderTenantID)
		}
		return tenantHeader, nil
	case ModeBearer:
		if authorization == "" {
			return "", fmt.Errorf("%w: authorization header missing", ragerr.ErrMissingCredentials)
		}
		return bearer(c, verifier, authorization)
	default:
		if authorization != "" {
			return bearer(c, verifier, authorization)
		}
		if tenantHeader != "" {
			return tenantHeader, nil
		}
		return "", fmt.Errorf("%w: provide an Authorization bearer token or %s", ragerr.ErrMissingCredentials, HeaderTenantID)
	}
}

func bearer(c echo.Context, verifier Verifier, authorization string) (string, error) {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: invalid authorization header format", ragerr.ErrInvalidCredentials)
	}
	if verifier == nil {
		return "", ErrVerifierUnavailable
	}
	return verifier.Verify(c.Request().Context(), strings.TrimSpace(token))
}

// TenantID returns the tenant resolved by Middleware.
func TenantID(c echo.Context) (string, error) {
	if id, ok := c.Get(contextKey).(string); ok && id != "" {
		return id, nil
	}
	return tenant.FromContext(c.Request().Context())
}
