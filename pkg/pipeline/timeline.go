package pipeline

import "time"

// Clock is the time source of the pipeline.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Mark is one timestamped stage transition.
type Mark struct {
	Stage Stage
	Label string
	Time  time.Time
}

// Timeline is the ordered list of stage transitions of a run. Timestamps are
// strictly increasing.
type Timeline struct {
	Marks []Mark
}

// StageDuration is the time spent between a mark and the next one.
type StageDuration struct {
	Stage    Stage
	Label    string
	Duration time.Duration
}

// StageDurations returns the differences between consecutive marks, labelled
// with the earlier mark.
func (t Timeline) StageDurations() []StageDuration {
	if len(t.Marks) < 2 {
		return nil
	}
	out := make([]StageDuration, 0, len(t.Marks)-1)
	for i := 1; i < len(t.Marks); i++ {
		prev := t.Marks[i-1]
		out = append(out, StageDuration{
			Stage:    prev.Stage,
			Label:    prev.Label,
			Duration: t.Marks[i].Time.Sub(prev.Time),
		})
	}
	return out
}

// Total is the time between the first and the last mark.
func (t Timeline) Total() time.Duration {
	if len(t.Marks) < 2 {
		return 0
	}
	return t.Marks[len(t.Marks)-1].Time.Sub(t.Marks[0].Time)
}

// add records a transition, nudging its time forward when the clock has not
// moved since the previous mark.
func (t *Timeline) add(stage Stage, label string, now time.Time) Mark {
	if n := len(t.Marks); n > 0 {
		if last := t.Marks[n-1].Time; !now.After(last) {
			now = last.Add(time.Nanosecond)
		}
	}
	m := Mark{Stage: stage, Label: label, Time: now}
	t.Marks = append(t.Marks, m)
	return m
}
