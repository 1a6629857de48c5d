package detector

import "time"

// Phase is the step phase of a session.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStepOpen Phase = "step_open"
)

// EventKind tags a StepEvent.
type EventKind string

const (
	EventStart EventKind = "start"
	EventEnd   EventKind = "end"
)

// StepEvent is emitted once per accepted transition.
type StepEvent struct {
	Kind        EventKind `json:"kind"`
	Probability float64   `json:"probability"`
	Magnitude   float64   `json:"magnitude"`
	Timestamp   time.Time `json:"timestamp"`
}

// StepMachine de-duplicates candidates into start/end events. A step is
// counted when it starts; an end only closes an open step.
//
//	Idle     + start -> StepOpen, emit Start, count++
//	StepOpen + end   -> Idle,     emit End
//	StepOpen + start -> ignored
//	Idle     + end   -> ignored (orphan)
//	any      + none  -> unchanged
type StepMachine struct {
	phase     Phase
	count     uint64
	lastStart *time.Time
	lastEnd   *time.Time
}

// NewStepMachine returns a machine in Idle with a zero count.
func NewStepMachine() *StepMachine {
	return &StepMachine{phase: PhaseIdle}
}

// Apply feeds one decision. It returns the emitted event, or nil.
func (m *StepMachine) Apply(d Decision, magnitude float64, ts time.Time) *StepEvent {
	switch {
	case d.Kind == CandidateStart && m.phase == PhaseIdle:
		m.phase = PhaseStepOpen
		m.count++
		t := ts
		m.lastStart = &t
		return &StepEvent{Kind: EventStart, Probability: d.Confidence, Magnitude: magnitude, Timestamp: ts}
	case d.Kind == CandidateEnd && m.phase == PhaseStepOpen:
		m.phase = PhaseIdle
		t := ts
		m.lastEnd = &t
		return &StepEvent{Kind: EventEnd, Probability: d.Confidence, Magnitude: magnitude, Timestamp: ts}
	}
	return nil
}

// Phase returns the current step phase.
func (m *StepMachine) Phase() Phase { return m.phase }

// Count returns the number of steps started since the last reset.
func (m *StepMachine) Count() uint64 { return m.count }

func (m *StepMachine) LastStart() *time.Time { return copyTime(m.lastStart) }

func (m *StepMachine) LastEnd() *time.Time { return copyTime(m.lastEnd) }

// Reset forces Idle, zeroes the count and clears timestamps.
func (m *StepMachine) Reset() {
	*m = StepMachine{phase: PhaseIdle}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
