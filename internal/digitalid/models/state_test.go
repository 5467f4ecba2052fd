package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "touristid/pkg/domain-errors"
)

func TestStateTransitions(t *testing.T) {
	for _, next := range []State{StateExpired, StateRevoked, StateLost} {
		assert.True(t, StateActive.CanTransitionTo(next), "ACTIVE -> %s", next)
	}
	assert.False(t, StateActive.CanTransitionTo(StateActive))

	for _, terminal := range []State{StateExpired, StateRevoked, StateLost} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range AllStates {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("LOST")
	require.NoError(t, err)
	assert.Equal(t, StateLost, s)

	_, err = ParseState("REPLACED")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
