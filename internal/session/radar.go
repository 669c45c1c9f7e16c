package session

import (
	"time"
)

// RadarConfig shapes the radar frame sequence sent for one request.
type RadarConfig struct {
	PastSteps          int
	FutureSteps        int
	StepMinutes        int
	NowcastStepMinutes int
	Location           *time.Location // zone of the local time shown on the unit
}

// FrameSpec describes one frame of a radar sequence.
type FrameSpec struct {
	Offset       int // steps relative to the current frame, negative for history
	Time         time.Time
	LocalMinutes int
	Nowcast      bool
	NowcastStep  int // minutes between forecast frames, nowcast frames only
	LeadMinutes  int // forecast lead time, nowcast frames only
}

// Sequence derives the frames of a radar sequence from the time of the
// current frame.
type Sequence struct {
	config RadarConfig
	base   time.Time
}

// NewSequence creates a Sequence anchored at base, the current frame time.
func NewSequence(config RadarConfig, base time.Time) Sequence {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.NowcastStepMinutes <= 0 {
		config.NowcastStepMinutes = config.StepMinutes
	}
	return Sequence{config: config, base: base}
}

// TotalFrames is the number of frames in the sequence, current frame included.
func (s Sequence) TotalFrames() int {
	return s.config.PastSteps + s.config.FutureSteps + 1
}

// Frame describes the frame at offset. Historical and current
// frames are spaced by StepMinutes; forecast frames by NowcastStepMinutes.
func (s Sequence) Frame(offset int) FrameSpec {
	f := FrameSpec{Offset: offset}

	if offset > 0 {
		f.Nowcast = true
		f.NowcastStep = s.config.NowcastStepMinutes
		f.LeadMinutes = offset * s.config.NowcastStepMinutes
		f.Time = s.base.Add(time.Duration(f.LeadMinutes) * time.Minute)
	} else {
		f.Time = s.base.Add(time.Duration(offset*s.config.StepMinutes) * time.Minute)
	}

	f.LocalMinutes = LocalMinutes(f.Time, s.config.Location)
	return f
}

// CenteredOffsets orders offsets outwards from the current frame:
// 0, -1, +1, -2, +2, ...
func CenteredOffsets(past, future int) []int {
	offsets := []int{0}
	for step := 1; step <= max(past, future); step++ {
		if step <= past {
			offsets = append(offsets, -step)
		}
		if step <= future {
			offsets = append(offsets, step)
		}
	}
	return offsets
}

// SequentialOffsets orders the current frame first, then history from the
// most recent backwards, then forecast frames forwards. This is the delivery
// order of the dispatcher.
func SequentialOffsets(past, future int) []int {
	offsets := make([]int, 0, past+future+1)
	offsets = append(offsets, 0)
	for step := 1; step <= past; step++ {
		offsets = append(offsets, -step)
	}
	for step := 1; step <= future; step++ {
		offsets = append(offsets, step)
	}
	return offsets
}

// LocalMinutes returns the minutes since local midnight of t.
func LocalMinutes(t time.Time, loc *time.Location) int {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Hour()*60 + t.Minute()
}
