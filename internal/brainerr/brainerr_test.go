package brainerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedSentinelsClassifyWithErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("read memory key %q: %w", "foo", ErrIntegrity)
	assert.True(t, errors.Is(wrapped, ErrIntegrity))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{ErrNotFound, ErrIntegrity, ErrTransient, ErrResource, ErrExecutionFailed, ErrTimeout, ErrCancelled, ErrUnknown}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v must not match %v", a, b)
		}
	}
}
