package domain

import "time"

// RecoveryPhase is the coarse state of the failure recovery coordinator.
type RecoveryPhase string

const (
	PhaseHealthy    RecoveryPhase = "healthy"
	PhaseRecovering RecoveryPhase = "recovering"
	PhaseTerminal   RecoveryPhase = "terminal"
)

// RecoveryState is a point-in-time view of the recovery budget.
type RecoveryState struct {
	Phase      RecoveryPhase `json:"phase"`
	RetryCount int           `json:"retry_count"`
	MaxRetries int           `json:"max_retries"`
	LastLabel  string        `json:"last_label,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
	IncidentID string        `json:"incident_id,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Exhausted reports whether no automatic recovery is left.
func (s RecoveryState) Exhausted() bool {
	return s.RetryCount >= s.MaxRetries
}

// Notice is the terminal failure message shown to the user.
type Notice struct {
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Action     string    `json:"action"` // the only offered action, a full reload
	IncidentID string    `json:"incident_id"`
	Label      string    `json:"label"`
	OccurredAt time.Time `json:"occurred_at"`
}
