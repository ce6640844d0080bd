package dashboard

import (
	"testing"

	"robot-telemetry/pkg/model"
)

func TestViewAppendsOnlyNewerSamples(t *testing.T) {
	v := NewView(model.DefaultRobotID, 3)
	steps := []struct {
		s    model.TelemetrySample
		want bool
	}{
		{sample(1), true},
		{sample(2), true},
		{sample(2), false},
		{sample(1), false},
		{model.TelemetrySample{}, false},
		{model.TelemetrySample{RobotID: "robot_002", Timestamp: sample(9).Timestamp}, false},
		{sample(3), true},
		{sample(4), true},
	}
	for i, st := range steps {
		if got := v.Add(st.s); got != st.want {
			t.Fatalf("step %d: Add = %v, want %v", i, got, st.want)
		}
	}
	got := v.Samples()
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i, sec := range []int{2, 3, 4} {
		if !got[i].Timestamp.Equal(sample(sec).Timestamp) {
			t.Fatalf("samples[%d] = %v", i, got[i].Timestamp)
		}
	}
}

func TestViewMergeOverlap(t *testing.T) {
	v := NewView(model.DefaultRobotID, 10)
	v.Merge([]model.TelemetrySample{sample(1), sample(2), sample(3)})
	if n := v.Merge([]model.TelemetrySample{sample(2), sample(3), sample(4), sample(5)}); n != 2 {
		t.Fatalf("merged %d new samples, want 2", n)
	}
	if v.Len() != 5 {
		t.Fatalf("len = %d", v.Len())
	}
	last, _ := v.Latest()
	if !last.Timestamp.Equal(sample(5).Timestamp) {
		t.Fatalf("latest = %v", last.Timestamp)
	}
}
