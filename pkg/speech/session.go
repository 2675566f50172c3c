package speech

import "time"

// Mode selects the presentation style of a practice session. It never affects
// engine logic, only how downstream clients render results.
type Mode string

const (
	// ModeGuided is the child-friendly guided experience.
	ModeGuided Mode = "guided"

	// ModeAnalytic is the data-forward adult experience.
	ModeAnalytic Mode = "analytic"
)

// IsValid reports whether m is a recognised session mode.
func (m Mode) IsValid() bool {
	return m == ModeGuided || m == ModeAnalytic
}

// SessionType classifies what kind of practice a session holds.
type SessionType string

const (
	TypeFreePractice SessionType = "freePractice"
	TypeScenario     SessionType = "scenario"
	TypeBreathing    SessionType = "breathing"
	TypePhonemeDrill SessionType = "phonemeDrill"
	TypeDailyTherapy SessionType = "dailyTherapy"
	TypeGame         SessionType = "game"
)

// IsValid reports whether t is a recognised session type.
func (t SessionType) IsValid() bool {
	switch t {
	case TypeFreePractice, TypeScenario, TypeBreathing, TypePhonemeDrill, TypeDailyTherapy, TypeGame:
		return true
	}
	return false
}

// Session is one timed practice attempt, from start to end or cancellation.
//
// Invariants: Completed is true exactly when EndTime is set, and
// MetricsHistory is never mutated once Completed is true.
type Session struct {
	// ID is unique and time-ordered (sessions sort chronologically by ID).
	ID string `json:"id"`

	Mode Mode        `json:"mode"`
	Type SessionType `json:"type"`

	// Scenario names the practice scenario, if any.
	Scenario string `json:"scenario,omitempty"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	// Duration is the elapsed practice time. While the session is active it
	// tracks now-StartTime; once ended it is frozen.
	Duration time.Duration `json:"duration"`

	// MetricsHistory collects every analysis snapshot recorded during the
	// session, append-only, oldest first.
	MetricsHistory []Metrics `json:"metricsHistory,omitempty"`

	// FinalMetrics is the closing analysis result, set once at session end.
	FinalMetrics *Metrics `json:"finalMetrics,omitempty"`

	// AudioPath references the recorded (or processed) audio, if kept.
	AudioPath string `json:"audioPath,omitempty"`

	// Transcript is the recognised text of the recording, if available.
	Transcript string `json:"transcript,omitempty"`

	Notes []string `json:"notes,omitempty"`

	Completed bool `json:"completed"`
}

// AverageScore returns the mean overall score across the session's metrics
// history, or 0 when no metrics were recorded.
func (s *Session) AverageScore() float64 {
	if len(s.MetricsHistory) == 0 {
		return 0
	}
	var sum float64
	for _, m := range s.MetricsHistory {
		sum += m.OverallScore
	}
	return sum / float64(len(s.MetricsHistory))
}
