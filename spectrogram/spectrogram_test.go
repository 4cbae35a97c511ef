package spectrogram

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goccmack/superflux/errkind"
)

func sine(freq float64, n, sampleRate int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return x
}

func TestBandCountIndependentOfFrameSize(t *testing.T) {
	for _, frameSize := range []int{256, 1024, 2048, 4096} {
		for _, numBands := range []int{1, 24, 80} {
			b, err := NewBuilder(Params{
				FrameSize:  frameSize,
				SampleRate: 44100,
				NumBands:   numBands,
				Fmin:       30,
				Fmax:       17000,
				Log:        true,
				Mul:        1,
				Add:        1,
			})
			require.NoError(t, err)
			out, err := b.Process(sine(440, frameSize, 44100))
			require.NoError(t, err)
			assert.Len(t, out, numBands, "frame size %d", frameSize)
			for _, v := range out {
				assert.GreaterOrEqual(t, v, 0.0)
			}
		}
	}
}

func TestFmaxClampedToNyquist(t *testing.T) {
	fb, err := NewFilterbank(24, 2048, 22050, 30, 17000, false)
	require.NoError(t, err)
	assert.Equal(t, 24, fb.NumBands())
	assert.InDelta(t, 11025, fb.Corners[len(fb.Corners)-1], 1e-9)
}

func TestFilterbankConfigErrors(t *testing.T) {
	tests := []struct {
		name       string
		numBands   int
		fmin, fmax float64
		sampleRate int
	}{
		{"no bands", 0, 30, 17000, 44100},
		{"fmax below fmin", 24, 1000, 500, 44100},
		{"fmax equal fmin", 24, 1000, 1000, 44100},
		{"fmin above nyquist", 24, 30000, 40000, 44100},
		{"zero fmin", 24, 0, 17000, 44100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilterbank(tt.numBands, 2048, tt.sampleRate, tt.fmin, tt.fmax, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errkind.ErrConfiguration))
		})
	}
}

func TestNormFiltersUnitArea(t *testing.T) {
	fb, err := NewFilterbank(24, 2048, 44100, 30, 17000, true)
	require.NoError(t, err)
	for b, row := range fb.Weights() {
		sum := 0.0
		for _, w := range row {
			sum += w
		}
		assert.InDelta(t, 1, sum, 1e-9, "band %d", b)
	}
}

func TestEveryFilterHasWeight(t *testing.T) {
	fb, err := NewFilterbank(80, 1024, 44100, 30, 17000, false)
	require.NoError(t, err)
	for b, row := range fb.Weights() {
		max := 0.0
		for _, w := range row {
			max = math.Max(max, w)
		}
		assert.Greater(t, max, 0.0, "band %d", b)
	}
}

func TestSineLandsInNearestBand(t *testing.T) {
	b, err := NewBuilder(Params{FrameSize: 2048, SampleRate: 44100, NumBands: 24, Fmin: 30, Fmax: 17000})
	require.NoError(t, err)
	out, err := b.Process(sine(1000, 2048, 44100))
	require.NoError(t, err)

	best := 0
	for i, v := range out {
		if v > out[best] {
			best = i
		}
	}
	corners := b.Filterbank().Corners
	assert.Less(t, corners[best], 1000.0)
	assert.Greater(t, corners[best+2], 1000.0)
}

func TestSilenceIsZeroAfterLog(t *testing.T) {
	b, err := NewBuilder(Params{FrameSize: 512, SampleRate: 8000, NumBands: 10, Fmin: 30, Fmax: 4000, Log: true, Mul: 1, Add: 1})
	require.NoError(t, err)
	out, err := b.Process(make([]float64, 512))
	require.NoError(t, err)
	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestProcessRejectsWrongFrameLength(t *testing.T) {
	b, err := NewBuilder(Params{FrameSize: 512, SampleRate: 8000, NumBands: 10, Fmin: 30, Fmax: 4000})
	require.NoError(t, err)
	_, err = b.Process(make([]float64, 100))
	assert.Error(t, err)
}

func TestLogCompressor(t *testing.T) {
	l, err := NewLogCompressor(1, 1)
	require.NoError(t, err)
	x := []float64{0, 9, 99}
	l.Apply(x)
	assert.InDeltaSlice(t, []float64{0, 1, 2}, x, 1e-12)

	_, err = NewLogCompressor(1, 0)
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))
	_, err = NewLogCompressor(0, 1)
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))
}
