package ragerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", errors.New("boom"), KindUnknown},
		{"context canceled", context.Canceled, KindUnknown},
		{"kind sentinel", ErrConfiguration, KindConfiguration},
		{"text too short", ErrTextTooShort, KindValidation},
		{"wrapped query too short", fmt.Errorf("tenant acme: %w", ErrQueryTooShort), KindValidation},
		{"embedding unavailable", ErrEmbeddingUnavailable, KindDependencyUnavailable},
		{"store unavailable", fmt.Errorf("upsert: %w", ErrStoreUnavailable), KindDependencyUnavailable},
		{"partial", ErrPartialFailure, KindPartialFailure},
		{"document not found", ErrDocumentNotFound, KindNotFound},
		{"invalid credentials", ErrInvalidCredentials, KindUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestSentinelMatchesKindOnly(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidQueryVector, ErrValidation))
	assert.False(t, errors.Is(ErrInvalidQueryVector, ErrDependencyUnavailable))
	assert.False(t, errors.Is(ErrTextTooShort, ErrQueryTooShort))
	assert.True(t, Is(fmt.Errorf("x: %w", ErrNoValidFragments), KindValidation))
}

func TestJoinedErrorsKeepBothMatches(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrNoFragmentsProduced, ErrEmbeddingUnavailable)

	assert.ErrorIs(t, err, ErrNoFragmentsProduced)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ValidationError", KindValidation.String())
	assert.Equal(t, "DependencyUnavailable", KindDependencyUnavailable.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}

func TestKindPrecedence(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrNoFragmentsProduced, ErrEmbeddingUnavailable)
	assert.Equal(t, KindDependencyUnavailable, KindOf(err))
}
