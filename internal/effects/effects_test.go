package effects

import (
	"math"
	"testing"

	"github.com/Maig0l/karaoke/internal/audio"
)

const testRate = 8000

func sine(freq float64, frames int) *audio.Buffer {
	l := make([]float64, frames)
	r := make([]float64, frames)
	for i := range l {
		v := 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
		l[i] = v
		r[i] = v
	}
	b, _ := audio.NewBuffer(testRate, [][]float64{l, r})
	return b
}

// zeroCrossingRate counts sign changes per sample in the middle of x, away
// from edge effects.
func zeroCrossingRate(x []float64) float64 {
	lo, hi := len(x)/4, 3*len(x)/4
	n := 0
	for i := lo + 1; i < hi; i++ {
		if (x[i-1] < 0) != (x[i] < 0) {
			n++
		}
	}
	return float64(n) / float64(hi-lo)
}

func TestValidateSemitones(t *testing.T) {
	for _, v := range []int{-12, 0, 7, 12} {
		if err := ValidateSemitones(v); err != nil {
			t.Errorf("ValidateSemitones(%d) = %v, want nil", v, err)
		}
	}
	for _, v := range []int{-13, 13, 100} {
		if err := ValidateSemitones(v); err == nil {
			t.Errorf("ValidateSemitones(%d) = nil, want error", v)
		}
	}
}

func TestValidateStretch(t *testing.T) {
	for _, v := range []float64{0.25, 1, 1.5, 2} {
		if err := ValidateStretch(v); err != nil {
			t.Errorf("ValidateStretch(%v) = %v, want nil", v, err)
		}
	}
	for _, v := range []float64{0, 0.2, 2.01, math.NaN(), math.Inf(1)} {
		if err := ValidateStretch(v); err == nil {
			t.Errorf("ValidateStretch(%v) = nil, want error", v)
		}
	}
}

func TestNewDSP(t *testing.T) {
	d, err := NewDSP("")
	if err != nil || d.Engine() != EngineWSOLA {
		t.Errorf("NewDSP(\"\") = %v, %v; want wsola engine", d, err)
	}
	if _, err := NewDSP(EngineSpectral); err != nil {
		t.Errorf("NewDSP(spectral) = %v", err)
	}
	if _, err := NewDSP("rubberband"); err == nil {
		t.Error("unknown engine should fail")
	}
}

func TestIdentityReturnsSource(t *testing.T) {
	d, _ := NewDSP(EngineWSOLA)
	src := sine(440, testRate/4)

	out, err := d.PitchShift(src, 0)
	if err != nil || out != src {
		t.Errorf("PitchShift(0) = %p, %v; want source buffer", out, err)
	}
	out, err = d.TimeStretch(src, 1)
	if err != nil || out != src {
		t.Errorf("TimeStretch(1) = %p, %v; want source buffer", out, err)
	}
}

func TestTimeStretchLength(t *testing.T) {
	d, _ := NewDSP(EngineWSOLA)
	src := sine(220, testRate)

	tests := []struct {
		ratio float64
		want  int
	}{
		{2.0, testRate / 2},
		{0.5, testRate * 2},
		{1.5, int(math.Round(testRate / 1.5))},
		{0.25, testRate * 4},
	}
	for _, tt := range tests {
		out, err := d.TimeStretch(src, tt.ratio)
		if err != nil {
			t.Fatalf("TimeStretch(%v): %v", tt.ratio, err)
		}
		if out.Frames() != tt.want {
			t.Errorf("TimeStretch(%v) frames = %d, want %d", tt.ratio, out.Frames(), tt.want)
		}
		if out.SampleRate() != testRate || out.Channels() != 2 {
			t.Errorf("TimeStretch(%v) changed format: rate=%d channels=%d", tt.ratio, out.SampleRate(), out.Channels())
		}
	}
}

func TestTimeStretchKeepsPitch(t *testing.T) {
	d, _ := NewDSP(EngineWSOLA)
	src := sine(220, testRate)
	out, err := d.TimeStretch(src, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	want := zeroCrossingRate(src.Channel(0))
	got := zeroCrossingRate(out.Channel(0))
	if math.Abs(got-want)/want > 0.15 {
		t.Errorf("zero-crossing rate after stretch = %v, want ~%v", got, want)
	}
}

func TestPitchShiftOctave(t *testing.T) {
	d, _ := NewDSP(EngineWSOLA)
	src := sine(220, testRate)
	out, err := d.PitchShift(src, 12)
	if err != nil {
		t.Fatal(err)
	}
	if out.Frames() != src.Frames() {
		t.Errorf("PitchShift changed length: %d, want %d", out.Frames(), src.Frames())
	}
	ratio := zeroCrossingRate(out.Channel(0)) / zeroCrossingRate(src.Channel(0))
	if ratio < 1.7 || ratio > 2.3 {
		t.Errorf("octave up changed zero-crossing rate by %v, want ~2", ratio)
	}
}

func TestProcessingIsDeterministic(t *testing.T) {
	for _, engine := range []PitchEngine{EngineWSOLA, EngineSpectral} {
		d, _ := NewDSP(engine)
		src := sine(330, testRate/2)

		a, err := d.PitchShift(src, -3)
		if err != nil {
			t.Fatalf("%s: %v", engine, err)
		}
		b, _ := d.PitchShift(src, -3)
		if !a.Equal(b) {
			t.Errorf("%s: PitchShift not deterministic", engine)
		}

		c, _ := d.TimeStretch(src, 1.25)
		e, _ := d.TimeStretch(src, 1.25)
		if !c.Equal(e) {
			t.Errorf("%s: TimeStretch not deterministic", engine)
		}
	}
}

func TestProcessingLeavesSourceUntouched(t *testing.T) {
	d, _ := NewDSP(EngineWSOLA)
	src := sine(440, testRate/2)
	snapshot := sine(440, testRate/2)

	if _, err := d.PitchShift(src, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := d.TimeStretch(src, 0.75); err != nil {
		t.Fatal(err)
	}
	if !src.Equal(snapshot) {
		t.Error("source buffer was modified")
	}
}

func TestOutOfRangeParameters(t *testing.T) {
	d, _ := NewDSP(EngineWSOLA)
	src := sine(440, 100)
	if _, err := d.PitchShift(src, 24); err == nil {
		t.Error("PitchShift(24) should fail")
	}
	if _, err := d.TimeStretch(src, 3); err == nil {
		t.Error("TimeStretch(3) should fail")
	}
}
