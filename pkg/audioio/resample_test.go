package audioio

import (
	"math"
	"testing"
)

func TestResample(t *testing.T) {
	t.Run("same rate is identity", func(t *testing.T) {
		in := []int16{1, 2, 3}
		out := Resample(in, 16000, 16000)
		if len(out) != 3 || out[2] != 3 {
			t.Errorf("unexpected output %v", out)
		}
	})

	t.Run("downsample halves length", func(t *testing.T) {
		in := make([]int16, 480)
		out := Resample(in, 48000, 16000)
		if len(out) != 160 {
			t.Errorf("expected 160 samples, got %d", len(out))
		}
	})

	t.Run("upsample interpolates", func(t *testing.T) {
		out := Resample([]int16{0, 100}, 8000, 16000)
		if len(out) != 4 {
			t.Fatalf("expected 4 samples, got %d", len(out))
		}
		if out[1] != 50 {
			t.Errorf("expected interpolated 50, got %d", out[1])
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if out := Resample(nil, 48000, 16000); len(out) != 0 {
			t.Errorf("expected empty output, got %d samples", len(out))
		}
	})
}

func TestSampleBytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 256}
	out := BytesToSamples(SamplesToBytes(in))
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]int16, 100), 0},
		{"full scale square", []int16{-32768, -32768}, 1},
		{"half scale", []int16{16384, -16384}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateRMS(tt.samples); math.Abs(got-tt.want) > 1e-3 {
				t.Errorf("CalculateRMS = %f, want %f", got, tt.want)
			}
		})
	}
}

func BenchmarkResample_3x(b *testing.B) {
	samples := make([]int16, 4800)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Resample(samples, 48000, 16000)
	}
}
