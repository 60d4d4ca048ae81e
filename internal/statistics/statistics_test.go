package statistics

import "testing"

func approxEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func TestMean(t *testing.T) {
	if !approxEqual(Mean([]float64{1, 2, 3}), 2) {
		t.Fatal("expected mean 2")
	}
	if Mean(nil) != 0 {
		t.Fatal("expected 0 for empty sequence")
	}
}

func TestMedianOddEven(t *testing.T) {
	if !approxEqual(Median([]float64{3, 1, 2}), 2) {
		t.Fatal("expected median 2 for odd-length sequence")
	}
	if !approxEqual(Median([]float64{1, 2, 3, 4}), 2.5) {
		t.Fatal("expected median 2.5 for even-length sequence")
	}
}

func TestMinMax(t *testing.T) {
	values := []float64{5, 1, 9, 3}
	if Min(values) != 1 {
		t.Fatal("expected min 1")
	}
	if Max(values) != 9 {
		t.Fatal("expected max 9")
	}
}

func TestStdevRequiresTwoValues(t *testing.T) {
	if Stdev([]float64{42}) != 0 {
		t.Fatal("expected 0 stdev for single-value sequence")
	}
	if Stdev(nil) != 0 {
		t.Fatal("expected 0 stdev for empty sequence")
	}
}

func TestSummarizeBounds(t *testing.T) {
	s := Summarize([]float64{10, 20, 30, 40})
	if s.Min > s.Median || s.Median > s.Max {
		t.Fatalf("expected min <= median <= max, got %+v", s)
	}
	if s.Min > s.Mean || s.Mean > s.Max {
		t.Fatalf("expected min <= mean <= max, got %+v", s)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if Summarize(nil) != (Summary{}) {
		t.Fatal("expected zero Summary for empty input")
	}
}
