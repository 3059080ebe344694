package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalStateMachine_HappyPath(t *testing.T) {
	sm := NewProposalStateMachine()
	assert.Equal(t, ProposalDraft, sm.CurrentState())

	require.NoError(t, sm.Transition(ProposalValidated, "validated"))
	require.NoError(t, sm.Transition(ProposalApproved, "auto_approved"))
	require.NoError(t, sm.Transition(ProposalExecuted, "order_filled"))

	assert.Equal(t, ProposalExecuted, sm.CurrentState())
	assert.Equal(t, ProposalApproved, sm.PreviousState())
	assert.Equal(t, 1, sm.TransitionCount(ProposalExecuted))
}

func TestProposalStateMachine_IllegalTransitionDoesNotMutate(t *testing.T) {
	sm := NewProposalStateMachine()
	err := sm.Transition(ProposalExecuted, "order_filled")
	require.Error(t, err)
	assert.Equal(t, ProposalDraft, sm.CurrentState(), "failed transition must not mutate state")
}

func TestProposalStateMachine_DeadLetterRetryResets(t *testing.T) {
	sm := NewProposalStateMachineFromStatus(ProposalError)
	require.NoError(t, sm.Transition(ProposalDeadLetter, "retry_exhausted"))
	require.NoError(t, sm.Transition(ProposalApproved, "manual_retry"))
	assert.Equal(t, ProposalApproved, sm.CurrentState())
}

func TestProposalStateMachine_DeadLetterCancel(t *testing.T) {
	sm := NewProposalStateMachineFromStatus(ProposalDeadLetter)
	require.NoError(t, sm.Transition(ProposalCancelled, "manual_cancel"))
	assert.Equal(t, ProposalCancelled, sm.CurrentState())
}

func TestProposalStateMachine_RejectedFromValidated(t *testing.T) {
	sm := NewProposalStateMachineFromStatus(ProposalValidated)
	require.NoError(t, sm.Transition(ProposalRejected, "risk_gate_failed"))
	assert.Equal(t, ProposalRejected, sm.CurrentState())
	// Rejected is terminal — no edges leave it.
	err := sm.Transition(ProposalApproved, "manual_approve")
	assert.Error(t, err)
}

func TestProposalStateMachine_AllTableEdgesAreReachable(t *testing.T) {
	for _, tr := range ProposalTransitions {
		sm := NewProposalStateMachineFromStatus(tr.From)
		err := sm.Transition(tr.To, tr.Condition)
		assert.NoErrorf(t, err, "edge %s -> %s via %q should be legal", tr.From, tr.To, tr.Condition)
	}
}

func TestProposalStateMachine_Copy(t *testing.T) {
	sm := NewProposalStateMachine()
	require.NoError(t, sm.Transition(ProposalValidated, "validated"))

	cp := sm.Copy()
	require.NoError(t, cp.Transition(ProposalApproved, "auto_approved"))

	assert.Equal(t, ProposalValidated, sm.CurrentState(), "original must not observe copy's mutation")
	assert.Equal(t, ProposalApproved, cp.CurrentState())
}

func TestProposalStateMachine_CopyNil(t *testing.T) {
	var sm *ProposalStateMachine
	assert.Nil(t, sm.Copy())
}
