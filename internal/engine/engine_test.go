package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWouldDemoteError(t *testing.T) {
	err := &WouldDemoteError{Count: 3}
	assert.Equal(t, "edit would move 3 signups to the queue", err.Error())

	var target *WouldDemoteError
	require.True(t, errors.As(error(err), &target))
	assert.Equal(t, 3, target.Count)

	wrapped := errors.Join(err, errors.New("context"))
	require.True(t, errors.As(wrapped, &target))
}
