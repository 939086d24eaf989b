package tenant

import (
	"context"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"acme",
		"3f1c2b9e-7a4d-4c1e-9b8a-2f6d5e4c3b2a",
		"user@example.com",
		"org:team.project",
	}
	for _, id := range valid {
		t.Run("valid "+id, func(t *testing.T) {
			assert.NoError(t, Validate(id))
		})
	}

	invalid := map[string]string{
		"empty":         "",
		"space":         "acme corp",
		"leading dash":  "-acme",
		"wildcard":      "*",
		"too long":      strings.Repeat("a", MaxIDLength+1),
		"invalid utf-8": "acme\xff",
		"newline":       "acme\nevil",
	}
	for name, id := range invalid {
		t.Run("invalid "+name, func(t *testing.T) {
			err := Validate(id)
			require.Error(t, err)
			assert.ErrorIs(t, err, ragerr.ErrInvalidTenant)
			assert.ErrorIs(t, err, ragerr.ErrValidation)
		})
	}
}

func TestContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ragerr.ErrInvalidTenant)

	ctx, err := WithID(context.Background(), "acme")
	require.NoError(t, err)

	id, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme", id)

	_, err = WithID(context.Background(), "")
	assert.Error(t, err)
}
