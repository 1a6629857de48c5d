package detector

import "time"

// SessionSummary is the reporting view of one session.
type SessionSummary struct {
	StepCount       uint64        `json:"step_count"`
	CompletedSteps  uint64        `json:"completed_steps"`
	StartEvents     uint64        `json:"start_events"`
	EndEvents       uint64        `json:"end_events"`
	TotalReadings   uint64        `json:"total_readings"`
	SessionStart    time.Time     `json:"session_start"`
	SessionDuration time.Duration `json:"session_duration_ns"`
	LastStartTS     *time.Time    `json:"last_start_ts"`
	LastEndTS       *time.Time    `json:"last_end_ts"`
	MeanMagnitude   float64       `json:"mean_magnitude"`
	LastEvent       *StepEvent    `json:"last_event,omitempty"`
}

// Aggregator is pure bookkeeping over emitted events.
type Aggregator struct {
	start     time.Time
	readings  uint64
	starts    uint64
	ends      uint64
	lastStart *time.Time
	lastEnd   *time.Time
	lastEvent *StepEvent
}

// NewAggregator starts accounting at start.
func NewAggregator(start time.Time) *Aggregator {
	return &Aggregator{start: start}
}

// CountReading notes one accepted reading.
func (a *Aggregator) CountReading() { a.readings++ }

// Record updates counters and last-seen timestamps for ev.
func (a *Aggregator) Record(ev StepEvent) {
	t := ev.Timestamp
	switch ev.Kind {
	case EventStart:
		a.starts++
		a.lastStart = &t
	case EventEnd:
		a.ends++
		a.lastEnd = &t
	}
	e := ev
	a.lastEvent = &e
}

// Summary reports the totals as of now. Steps are counted on start, so
// StepCount equals StartEvents and CompletedSteps equals EndEvents.
func (a *Aggregator) Summary(now time.Time) SessionSummary {
	var dur time.Duration
	if now.After(a.start) {
		dur = now.Sub(a.start)
	}
	var last *StepEvent
	if a.lastEvent != nil {
		e := *a.lastEvent
		last = &e
	}
	return SessionSummary{
		StepCount:       a.starts,
		CompletedSteps:  a.ends,
		StartEvents:     a.starts,
		EndEvents:       a.ends,
		TotalReadings:   a.readings,
		SessionStart:    a.start,
		SessionDuration: dur,
		LastStartTS:     copyTime(a.lastStart),
		LastEndTS:       copyTime(a.lastEnd),
		LastEvent:       last,
	}
}

// Reset zeroes all state and restarts the duration clock at now.
func (a *Aggregator) Reset(now time.Time) {
	*a = Aggregator{start: now}
}
