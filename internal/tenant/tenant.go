// Package tenant validates tenant identifiers and carries them through
// request contexts.
//
// Reads fail closed: a context without a tenant yields an error, never an
// empty identifier that could match an unfiltered query.
package tenant

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// MaxIDLength bounds tenant identifiers.
const MaxIDLength = 128

// idPattern admits UUIDs, emails and slug-like identifiers.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@-]*$`)

type ctxKey struct{}

// Validate checks a tenant identifier. Errors match ragerr.ErrInvalidTenant.
func Validate(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ragerr.ErrInvalidTenant)
	case !utf8.ValidString(id):
		return fmt.Errorf("%w: not valid UTF-8", ragerr.ErrInvalidTenant)
	case len(id) > MaxIDLength:
		return fmt.Errorf("%w: longer than %d bytes", ragerr.ErrInvalidTenant, MaxIDLength)
	case !idPattern.MatchString(id):
		return fmt.Errorf("%w: contains unsupported characters", ragerr.ErrInvalidTenant)
	}
	return nil
}

// WithID returns a context carrying a validated tenant id.
func WithID(ctx context.Context, id string) (context.Context, error) {
	if err := Validate(id); err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, ctxKey{}, id), nil
}

// FromContext returns the tenant id stored by WithID.
func FromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: missing from context", ragerr.ErrInvalidTenant)
	}
	return id, nil
}
