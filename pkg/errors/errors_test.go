package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesOriginalByCode(t *testing.T) {
	clone := Clone(ErrNotFound, "record not found")
	assert.True(t, errors.Is(clone, ErrNotFound))
	assert.False(t, errors.Is(clone, ErrIdenticalPeriods))
	assert.Equal(t, "record not found", clone.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestWrappedErrorStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", Clone(ErrInvalidComparison, ""))
	assert.True(t, errors.Is(wrapped, ErrInvalidComparison))
}

func TestFromErrorNormalisesUnknownErrors(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}
