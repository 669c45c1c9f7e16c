package session

import (
	"slices"
	"testing"
	"time"
)

func TestOffsets(t *testing.T) {
	tests := []struct {
		name       string
		past       int
		future     int
		centered   []int
		sequential []int
	}{
		{"symmetric", 2, 2, []int{0, -1, 1, -2, 2}, []int{0, -1, -2, 1, 2}},
		{"history only", 3, 0, []int{0, -1, -2, -3}, []int{0, -1, -2, -3}},
		{"more forecast", 1, 3, []int{0, -1, 1, 2, 3}, []int{0, -1, 1, 2, 3}},
		{"current only", 0, 0, []int{0}, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			centered := CenteredOffsets(tt.past, tt.future)
			sequential := SequentialOffsets(tt.past, tt.future)

			if !slices.Equal(centered, tt.centered) {
				t.Errorf("Expected centered %v, got %v", tt.centered, centered)
			}
			if !slices.Equal(sequential, tt.sequential) {
				t.Errorf("Expected sequential %v, got %v", tt.sequential, sequential)
			}

			if len(centered) != tt.past+tt.future+1 {
				t.Errorf("Expected %d offsets, got %d", tt.past+tt.future+1, len(centered))
			}

			a, b := slices.Clone(centered), slices.Clone(sequential)
			slices.Sort(a)
			slices.Sort(b)
			if !slices.Equal(a, b) {
				t.Errorf("Expected both orderings to cover the same offsets, got %v and %v", a, b)
			}
		})
	}
}

func TestSequence_Frame(t *testing.T) {
	base := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)
	seq := NewSequence(RadarConfig{
		PastSteps:          2,
		FutureSteps:        2,
		StepMinutes:        10,
		NowcastStepMinutes: 5,
		Location:           time.UTC,
	}, base)

	if seq.TotalFrames() != 5 {
		t.Errorf("Expected 5 frames, got %d", seq.TotalFrames())
	}

	tests := []struct {
		offset       int
		expectedTime time.Time
		localMinutes int
		nowcast      bool
		lead         int
	}{
		{0, base, 14*60 + 30, false, 0},
		{-1, base.Add(-10 * time.Minute), 14*60 + 20, false, 0},
		{-2, base.Add(-20 * time.Minute), 14*60 + 10, false, 0},
		{1, base.Add(5 * time.Minute), 14*60 + 35, true, 5},
		{2, base.Add(10 * time.Minute), 14*60 + 40, true, 10},
	}

	for _, tt := range tests {
		f := seq.Frame(tt.offset)

		if !f.Time.Equal(tt.expectedTime) {
			t.Errorf("Offset %d: expected time %s, got %s", tt.offset, tt.expectedTime, f.Time)
		}
		if f.LocalMinutes != tt.localMinutes {
			t.Errorf("Offset %d: expected local minutes %d, got %d", tt.offset, tt.localMinutes, f.LocalMinutes)
		}
		if f.Nowcast != tt.nowcast || f.LeadMinutes != tt.lead {
			t.Errorf("Offset %d: expected nowcast=%v lead=%d, got nowcast=%v lead=%d", tt.offset, tt.nowcast, tt.lead, f.Nowcast, f.LeadMinutes)
		}
		if tt.nowcast && f.NowcastStep != 5 {
			t.Errorf("Offset %d: expected nowcast step 5, got %d", tt.offset, f.NowcastStep)
		}
	}
}

func TestLocalMinutes(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 5, 1, 23, 15, 0, 0, time.UTC)

	if m := LocalMinutes(ts, loc); m != 75 {
		t.Errorf("Expected 75 minutes past local midnight, got %d", m)
	}
	if m := LocalMinutes(ts, time.UTC); m != 23*60+15 {
		t.Errorf("Expected %d minutes, got %d", 23*60+15, m)
	}
}
