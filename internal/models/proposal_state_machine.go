package models

import (
	"fmt"
	"time"
)

// ProposalTransition defines one valid edge in the proposal lifecycle graph.
type ProposalTransition struct {
	From        ProposalStatus
	To          ProposalStatus
	Condition   string
	Description string
}

// ProposalTransitions is the allowed state-transition graph for proposals,
// per spec §4.5.
var ProposalTransitions = []ProposalTransition{
	{ProposalDraft, ProposalValidated, "validated", "Risk gate ran, checks recorded"},
	{ProposalValidated, ProposalApproved, "auto_approved", "Auto-approved on creation (all checks pass, below threshold)"},
	{ProposalValidated, ProposalApproved, "manual_approve", "Operator approved a validated proposal"},
	{ProposalValidated, ProposalRejected, "risk_gate_failed", "A base or quant check failed"},
	{ProposalValidated, ProposalRejected, "manual_reject", "Operator rejected a validated proposal"},

	{ProposalApproved, ProposalExecuted, "order_filled", "Executor placed the order and recorded fills"},
	{ProposalApproved, ProposalError, "execution_failed", "Executor raised an error after order submission"},

	{ProposalError, ProposalDeadLetter, "retry_exhausted", "Retry budget exhausted (default threshold 3)"},
	{ProposalError, ProposalDeadLetter, "escalated", "Explicit operator escalation"},

	{ProposalDeadLetter, ProposalApproved, "manual_retry", "Operator retried a dead-lettered proposal"},
	{ProposalDeadLetter, ProposalCancelled, "manual_cancel", "Operator cancelled a dead-lettered proposal"},
}

var proposalTransitionLookup map[ProposalStatus]map[ProposalStatus]map[string]bool

func init() {
	proposalTransitionLookup = make(map[ProposalStatus]map[ProposalStatus]map[string]bool)
	for _, t := range ProposalTransitions {
		if proposalTransitionLookup[t.From] == nil {
			proposalTransitionLookup[t.From] = make(map[ProposalStatus]map[string]bool)
		}
		if proposalTransitionLookup[t.From][t.To] == nil {
			proposalTransitionLookup[t.From][t.To] = make(map[string]bool)
		}
		proposalTransitionLookup[t.From][t.To][t.Condition] = true
	}
}

// ProposalStateMachine tracks one proposal's lifecycle state and enforces
// that only edges in ProposalTransitions are taken.
type ProposalStateMachine struct {
	currentState    ProposalStatus
	previousState   ProposalStatus
	transitionTime  time.Time
	transitionCount map[ProposalStatus]int
	retryLimit      int
}

// NewProposalStateMachine creates a state machine starting at draft, with
// the default retry-to-dead-letter threshold (3) from spec §7.
func NewProposalStateMachine() *ProposalStateMachine {
	return NewProposalStateMachineWithLimit(3)
}

// NewProposalStateMachineWithLimit creates a state machine with a configurable
// retry limit.
func NewProposalStateMachineWithLimit(retryLimit int) *ProposalStateMachine {
	return &ProposalStateMachine{
		currentState:    ProposalDraft,
		previousState:   ProposalDraft,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[ProposalStatus]int),
		retryLimit:      retryLimit,
	}
}

// NewProposalStateMachineFromStatus initializes a state machine already at
// the given status, e.g. after loading a row back from the store.
func NewProposalStateMachineFromStatus(status ProposalStatus) *ProposalStateMachine {
	sm := NewProposalStateMachine()
	sm.currentState = status
	sm.previousState = status
	sm.transitionCount[status] = 1
	return sm
}

// CurrentState returns the current status.
func (sm *ProposalStateMachine) CurrentState() ProposalStatus {
	return sm.currentState
}

// PreviousState returns the prior status.
func (sm *ProposalStateMachine) PreviousState() ProposalStatus {
	return sm.previousState
}

func (sm *ProposalStateMachine) isTransitionDefined(to ProposalStatus, condition string) bool {
	if toMap, ok := proposalTransitionLookup[sm.currentState]; ok {
		if condMap, ok := toMap[to]; ok {
			_, ok := condMap[condition]
			return ok
		}
	}
	return false
}

// IsValidTransition reports whether the given transition is legal from the
// current state, without performing it.
func (sm *ProposalStateMachine) IsValidTransition(to ProposalStatus, condition string) error {
	if !sm.isTransitionDefined(to, condition) {
		return fmt.Errorf("illegal proposal transition from %s to %s via %q", sm.currentState, to, condition)
	}
	return nil
}

// Transition moves the state machine to a new status. The timestamp for the
// transition is captured once so previousState/transitionTime stay
// consistent even under concurrent callers racing on a copy.
func (sm *ProposalStateMachine) Transition(to ProposalStatus, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	now := time.Now().UTC()
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = now
	sm.transitionCount[to]++
	return nil
}

// TransitionCount returns how many times the machine has entered a state.
func (sm *ProposalStateMachine) TransitionCount(state ProposalStatus) int {
	return sm.transitionCount[state]
}

// RetryLimit returns the configured error→dead_letter retry threshold.
func (sm *ProposalStateMachine) RetryLimit() int {
	return sm.retryLimit
}

// Copy returns a deep copy, or nil if sm is nil (so Proposal.Copy can call
// this unconditionally on an unattached state machine).
func (sm *ProposalStateMachine) Copy() *ProposalStateMachine {
	if sm == nil {
		return nil
	}
	cp := &ProposalStateMachine{
		currentState:   sm.currentState,
		previousState:  sm.previousState,
		transitionTime: sm.transitionTime,
		retryLimit:     sm.retryLimit,
	}
	cp.transitionCount = make(map[ProposalStatus]int, len(sm.transitionCount))
	for k, v := range sm.transitionCount {
		cp.transitionCount[k] = v
	}
	return cp
}
