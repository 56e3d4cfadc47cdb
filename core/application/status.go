package application

import "github.com/trezcool/edulens/core"

type Status string

const (
	StatusDraft       Status = "draft"
	StatusInProgress  Status = "in_progress"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusInterview   Status = "interview"
	StatusWaitlisted  Status = "waitlisted"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusWithdrawn   Status = "withdrawn"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusInProgress,
	StatusSubmitted,
	StatusUnderReview,
	StatusInterview,
	StatusWaitlisted,
	StatusAccepted,
	StatusRejected,
	StatusWithdrawn,
}

var validTransitions = map[Status][]Status{
	StatusDraft:       {StatusInProgress, StatusSubmitted, StatusWithdrawn},
	StatusInProgress:  {StatusDraft, StatusSubmitted, StatusWithdrawn},
	StatusSubmitted:   {StatusUnderReview, StatusInterview, StatusAccepted, StatusRejected, StatusWaitlisted, StatusWithdrawn},
	StatusUnderReview: {StatusInterview, StatusAccepted, StatusRejected, StatusWaitlisted, StatusWithdrawn},
	StatusInterview:   {StatusAccepted, StatusRejected, StatusWaitlisted, StatusWithdrawn},
	StatusWaitlisted:  {StatusAccepted, StatusRejected, StatusWithdrawn},
	StatusAccepted:    {},
	StatusRejected:    {},
	StatusWithdrawn:   {},
}

// StatusValues returns the string values of Statuses.
func StatusValues() []string {
	values := make([]string, 0, len(Statuses))
	for _, s := range Statuses {
		values = append(values, string(s))
	}
	return values
}

// ParseStatus converts a string to a Status; the error lists the valid values.
func ParseStatus(s string) (Status, error) {
	st := Status(core.CleanString(s, true /* lower */))
	if _, ok := validTransitions[st]; !ok {
		return "", core.NewChoiceError("status", s, StatusValues())
	}
	return st, nil
}

// IsTransitionAllowed reports whether an application may move from one status to another.
func IsTransitionAllowed(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s.
func NextStatuses(s Status) []Status {
	return validTransitions[s]
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// IsDecision reports whether s is a final admission decision.
func (s Status) IsDecision() bool {
	return s == StatusAccepted || s == StatusRejected
}
