// Package dialog implements the turn-based phone conversation that takes
// a caller from greeting to a booked service visit.
package dialog

// State is the question the agent is currently waiting on an answer to.
type State string

const (
	StateGreeting       State = "greeting"
	StateIdentifyNeed   State = "identify_need"
	StateCollectName    State = "collect_name"
	StateCollectPhone   State = "collect_phone"
	StateCollectAddress State = "collect_address"
	StateCollectIssue   State = "collect_issue"
	StateCollectDate    State = "collect_date"
	StateCollectTime    State = "collect_time"
	StateConfirm        State = "confirm"
	StateComplete       State = "complete"
	StateFAQ            State = "faq"
	StateEmergency      State = "emergency"
)

// Terminal reports whether the call is over once this state is reached.
func (s State) Terminal() bool {
	return s == StateComplete
}

// States lists every state in flow order.
func States() []State {
	return []State{
		StateGreeting, StateIdentifyNeed, StateCollectName, StateCollectPhone,
		StateCollectAddress, StateCollectIssue, StateCollectDate, StateCollectTime,
		StateConfirm, StateComplete, StateFAQ, StateEmergency,
	}
}

// Outcome is how a call ended.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeBooked      Outcome = "booked"
	OutcomeEmergency   Outcome = "emergency"
	OutcomeTransferred Outcome = "transferred"
	OutcomeNoInput     Outcome = "no_input"
	OutcomeAbandoned   Outcome = "abandoned"
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
)
