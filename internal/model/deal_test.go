package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextOnCompletionRequest(t *testing.T) {
	tests := []struct {
		name    string
		state   DealState
		actor   DealActor
		want    DealState
		wantErr bool
	}{
		{"buyer request from open", DealOpen, ActorBuyer, DealCompletionRequested, false},
		{"buyer request repeated", DealCompletionRequested, ActorBuyer, DealCompletionRequested, false},
		{"seller confirm from open", DealOpen, ActorSeller, DealCompleted, false},
		{"seller confirm after buyer request", DealCompletionRequested, ActorSeller, DealCompleted, false},
		{"buyer request on completed", DealCompleted, ActorBuyer, DealCompleted, true},
		{"seller confirm on completed", DealCompleted, ActorSeller, DealCompleted, true},
		{"buyer request on cancelled", DealCancelled, ActorBuyer, DealCancelled, true},
		{"seller confirm on cancelled", DealCancelled, ActorSeller, DealCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.state.NextOnCompletionRequest(tt.actor)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOnCancel(t *testing.T) {
	for _, s := range []DealState{DealOpen, DealCompletionRequested} {
		got, err := s.NextOnCancel()
		assert.NoError(t, err, "cancel from %s", s)
		assert.Equal(t, DealCancelled, got)
	}
	for _, s := range []DealState{DealCompleted, DealCancelled} {
		_, err := s.NextOnCancel()
		assert.ErrorIs(t, err, ErrInvalidTransition, "cancel from %s", s)
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, DealOpen.Terminal())
	assert.False(t, DealCompletionRequested.Terminal())
	assert.True(t, DealCompleted.Terminal())
	assert.True(t, DealCancelled.Terminal())
}

func TestChatParticipants(t *testing.T) {
	c := &Chat{BuyerID: "b", SellerID: "s"}
	assert.True(t, c.IsParticipant("b"))
	assert.True(t, c.IsParticipant("s"))
	assert.False(t, c.IsParticipant("x"))
	assert.Equal(t, "s", c.OtherParticipant("b"))
	assert.Equal(t, "b", c.OtherParticipant("s"))
	assert.Equal(t, "", c.OtherParticipant("x"))
}
