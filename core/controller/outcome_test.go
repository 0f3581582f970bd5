package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	t.Run("Transition", func(t *testing.T) {
		o := Transition(widgetState{State: "ready"})
		assert.Equal(t, OutcomeTransition, o.Kind())
		next, ok := o.Next()
		assert.True(t, ok)
		assert.Equal(t, "ready", next.State)
		assert.Nil(t, o.Txn())
	})

	t.Run("Wait", func(t *testing.T) {
		o := Wait[widgetState]("trays not powered")
		assert.Equal(t, OutcomeWait, o.Kind())
		assert.Equal(t, "trays not powered", o.Reason())
		_, ok := o.Next()
		assert.False(t, ok)
	})

	t.Run("ZeroValueIsDoNothing", func(t *testing.T) {
		var o Outcome[widgetState]
		assert.Equal(t, OutcomeDoNothing, o.Kind())
		assert.Equal(t, DoNothing[widgetState]().Kind(), o.Kind())
	})

	t.Run("Deleted", func(t *testing.T) {
		assert.Equal(t, OutcomeDeleted, Deleted[widgetState]().Kind())
	})
}

func TestHandlerError(t *testing.T) {
	err := HandlerErrorf(LabelLoadObjectState, "object %s vanished", "w1")
	assert.Equal(t, LabelLoadObjectState, errorLabel(err))
	assert.Contains(t, err.Error(), "w1")
	assert.Equal(t, LabelUnknown, errorLabel(assert.AnError))
}
