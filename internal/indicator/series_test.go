package indicator

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestSafeDiv(t *testing.T) {
	if got, ok := SafeDiv(10, 4); !ok || got != 2.5 {
		t.Errorf("SafeDiv(10, 4) = (%v, %v), want (2.5, true)", got, ok)
	}
	if got, ok := SafeDiv(10, 0); ok || got != 0 {
		t.Errorf("SafeDiv(10, 0) = (%v, %v), want (0, false)", got, ok)
	}
	if got, ok := SafeDiv(0, 0); ok || got != 0 {
		t.Errorf("SafeDiv(0, 0) = (%v, %v), want (0, false)", got, ok)
	}
	if _, ok := SafeDiv(1, math.NaN()); ok {
		t.Error("SafeDiv(1, NaN) reported ok")
	}
	if _, ok := SafeDiv(math.Inf(1), 2); ok {
		t.Error("SafeDiv(+Inf, 2) reported ok")
	}
}

func TestRollingMeanMinPeriodsOne(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	got := RollingMean(x, 3)
	want := []float64{1, 1.5, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("RollingMean[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if RollingMean(x, 0) != nil {
		t.Error("RollingMean with window 0 should return nil")
	}
}

func TestRollingMeanConstantIsExact(t *testing.T) {
	for _, px := range []float64{60, 60.1, 0.1, 49.37, 123.45} {
		x := make([]float64, 80)
		for i := range x {
			x[i] = px
		}
		short := RollingMean(x, 20)
		long := RollingMean(x, 50)
		for i := range x {
			if short[i] != px || long[i] != px {
				t.Fatalf("px %v row %d: short = %v, long = %v, want both exactly %v", px, i, short[i], long[i], px)
			}
		}
	}
}

func TestRollingMeanRunResets(t *testing.T) {
	// The run of 2s reaches the full window only at the last row.
	got := RollingMean([]float64{1, 2, 2, 2}, 3)
	want := []float64{1, 1.5, 5.0 / 3, 2}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("RollingMean[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if got[3] != 2 {
		t.Errorf("RollingMean[3] = %v, want exactly 2", got[3])
	}
}

func TestRollingMaxMin(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5, 9, 2}
	hi := RollingMax(x, 3)
	lo := RollingMin(x, 3)

	for i := 0; i < 2; i++ {
		if !math.IsNaN(hi[i]) || !math.IsNaN(lo[i]) {
			t.Errorf("index %d should be NaN during warmup, got max=%v min=%v", i, hi[i], lo[i])
		}
	}
	wantHi := []float64{4, 4, 5, 9, 9}
	wantLo := []float64{1, 1, 1, 1, 2}
	for i := range wantHi {
		if hi[i+2] != wantHi[i] {
			t.Errorf("RollingMax[%d] = %v, want %v", i+2, hi[i+2], wantHi[i])
		}
		if lo[i+2] != wantLo[i] {
			t.Errorf("RollingMin[%d] = %v, want %v", i+2, lo[i+2], wantLo[i])
		}
	}
}

func TestBackFill(t *testing.T) {
	nan := math.NaN()
	got, ok := BackFill([]float64{nan, nan, 7, nan, 9})
	if !ok {
		t.Fatal("BackFill reported no defined value")
	}
	want := []float64{7, 7, 7, 9, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BackFill[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	got, ok = BackFill([]float64{nan, nan})
	if ok {
		t.Error("BackFill of all-NaN series reported ok")
	}
	for i, v := range got {
		if v != 0 {
			t.Errorf("BackFill all-NaN [%d] = %v, want 0", i, v)
		}
	}
}

func TestDiff(t *testing.T) {
	d := Diff([]float64{100, 110, 0, 50})
	if d[0] != 0 || d[1] != 10 || d[2] != -110 || d[3] != 50 {
		t.Errorf("Diff = %v, want [0 10 -110 50]", d)
	}
}

func TestEquityReturns(t *testing.T) {
	p := EquityReturns([]float64{100, 110, 0, 50, 60})
	if p[0] != 0 {
		t.Errorf("EquityReturns[0] = %v, want 0", p[0])
	}
	if !approxEqual(p[1], 0.1) {
		t.Errorf("EquityReturns[1] = %v, want 0.1", p[1])
	}
	if p[2] != -1 {
		t.Errorf("EquityReturns[2] = %v, want -1", p[2])
	}
	// Previous value is zero: guarded to 0 rather than +Inf.
	if p[3] != 0 {
		t.Errorf("EquityReturns[3] = %v, want 0", p[3])
	}
	if !approxEqual(p[4], 0.2) {
		t.Errorf("EquityReturns[4] = %v, want 0.2", p[4])
	}
}

func TestEquityReturnsBelowZero(t *testing.T) {
	// 100 -> -50 would be -150% and -50 -> -80 would be +60%; both are
	// meaningless for an account that is already wiped out.
	p := EquityReturns([]float64{100, -50, -80, -20, 10})
	want := []float64{0, -1, 0, 0, 0}
	for i := range want {
		if p[i] != want[i] {
			t.Errorf("EquityReturns[%d] = %v, want %v", i, p[i], want[i])
		}
	}

	growth := 1.0
	for _, r := range p {
		growth *= 1 + r
		if growth < 0 {
			t.Fatalf("compounded growth = %v, want >= 0", growth)
		}
	}
}

func TestCumulative(t *testing.T) {
	x := []float64{1.1, 0.9, 1.2}
	cp := CumProd(x)
	if !approxEqual(cp[2], 1.1*0.9*1.2) {
		t.Errorf("CumProd[2] = %v, want %v", cp[2], 1.1*0.9*1.2)
	}
	cm := CumMax([]float64{1, 3, 2, 5, 4})
	want := []float64{1, 3, 3, 5, 5}
	for i := range want {
		if cm[i] != want[i] {
			t.Errorf("CumMax[%d] = %v, want %v", i, cm[i], want[i])
		}
	}
}

func TestMeanStdMin(t *testing.T) {
	x := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := Mean(x); got != 5 {
		t.Errorf("Mean = %v, want 5", got)
	}
	// Sample variance = 32 / 7.
	if got, want := SampleStd(x), math.Sqrt(32.0/7.0); !approxEqual(got, want) {
		t.Errorf("SampleStd = %v, want %v", got, want)
	}
	if got := SampleStd([]float64{3}); got != 0 {
		t.Errorf("SampleStd of one value = %v, want 0", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	if got := Min([]float64{3, -1, 2}); got != -1 {
		t.Errorf("Min = %v, want -1", got)
	}
}
