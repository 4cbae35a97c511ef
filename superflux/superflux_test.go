package superflux

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/mjibson/go-dsp/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goccmack/superflux/audio"
	"github.com/goccmack/superflux/errkind"
	"github.com/goccmack/superflux/spectrogram"
)

func TestDiffFramesMonotonicInRatio(t *testing.T) {
	for _, frameSize := range []int{1024, 2048, 4096} {
		w := window.Hann(frameSize)
		prev := math.MaxInt32
		for i := 0; i <= 20; i++ {
			ratio := float64(i) / 20
			lag := DiffFrames(w, 441, ratio)
			assert.GreaterOrEqual(t, lag, 1)
			assert.LessOrEqual(t, lag, prev, "frame size %d ratio %.2f", frameSize, ratio)
			prev = lag
		}
	}
	w := window.Hann(4096)
	assert.Greater(t, DiffFrames(w, 441, 0.1), DiffFrames(w, 441, 0.9))
	assert.Equal(t, 1, DiffFrames(window.Hann(2048), 441, 0.5))
	assert.Equal(t, 1, DiffFrames(window.Hann(2048), 441, 1))
	assert.Equal(t, 1, DiffFrames(window.Hann(4096), 441, 1))
}

func TestMaxFilterHalfWidth(t *testing.T) {
	assert.Equal(t, 0, MaxFilterHalfWidth(0))
	assert.Equal(t, 0, MaxFilterHalfWidth(1))
	assert.Equal(t, 1, MaxFilterHalfWidth(3))
	assert.Equal(t, 2, MaxFilterHalfWidth(5))
}

func TestMaxFilter(t *testing.T) {
	x := []float64{1, 5, 2, 0, 0, 3}
	assert.Equal(t, []float64{5, 5, 5, 2, 3, 3}, MaxFilter(nil, x, 1))
	assert.Equal(t, x, MaxFilter(nil, x, 0))
}

func TestInitialFramesAreZero(t *testing.T) {
	spec := [][]float64{{1, 1}, {2, 2}, {4, 4}, {8, 8}}
	act, err := Compute(spec, Params{NumBands: 2, Lag: 2, MaxBins: 1, PositiveDiffs: true})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 6, 12}, act)
}

func TestPositiveDiffsNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	spec := make([][]float64, 200)
	for i := range spec {
		spec[i] = make([]float64, 24)
		for b := range spec[i] {
			spec[i][b] = rng.Float64() * 3
		}
	}
	for _, lag := range []int{1, 2, 3} {
		act, err := Compute(spec, Params{NumBands: 24, Lag: lag, MaxBins: 3, PositiveDiffs: true})
		require.NoError(t, err)
		require.Len(t, act, len(spec))
		for i, v := range act {
			assert.GreaterOrEqual(t, v, 0.0, "frame %d", i)
		}
	}

	act, err := Compute(spec, Params{NumBands: 24, Lag: 1, MaxBins: 1})
	require.NoError(t, err)
	neg := false
	for _, v := range act {
		neg = neg || v < 0
	}
	assert.True(t, neg, "without rectification decreases show up as negative flux")
}

func TestNonFiniteInput(t *testing.T) {
	f, err := New(Params{NumBands: 2, Lag: 1, PositiveDiffs: true})
	require.NoError(t, err)
	_, err = f.Next([]float64{1, math.NaN()})
	assert.True(t, errors.Is(err, errkind.ErrComputation))

	_, err = f.Next([]float64{1})
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))
}

func TestConfigErrors(t *testing.T) {
	_, err := New(Params{NumBands: 0, Lag: 1})
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))
	_, err = New(Params{NumBands: 4, Lag: 0})
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))
}

// vibrato returns a sinusoid whose frequency swings around centre by depth
// Hz at rate Hz with constant amplitude.
func vibrato(centre, depth, rate float64, seconds float64, sampleRate int) *audio.Signal {
	n := int(seconds * float64(sampleRate))
	sig := &audio.Signal{Samples: make([]float64, n), SampleRate: sampleRate}
	phase := 0.0
	for i := range sig.Samples {
		tm := float64(i) / float64(sampleRate)
		f := centre + depth*math.Sin(2*math.Pi*rate*tm)
		phase += 2 * math.Pi * f / float64(sampleRate)
		sig.Samples[i] = 0.5 * math.Sin(phase)
	}
	return sig
}

func spectrogramOf(t *testing.T, sig *audio.Signal, numBands int) ([][]float64, int) {
	t.Helper()
	fr, err := audio.NewFramer(sig, 100, 2048, false)
	require.NoError(t, err)
	b, err := spectrogram.NewBuilder(spectrogram.Params{
		FrameSize:  2048,
		SampleRate: sig.SampleRate,
		NumBands:   numBands,
		Fmin:       30,
		Fmax:       17000,
		Log:        true,
		Mul:        1,
		Add:        1,
	})
	require.NoError(t, err)
	var spec [][]float64
	for frame, ok := fr.Next(); ok; frame, ok = fr.Next() {
		bands, err := b.Process(frame.Samples)
		require.NoError(t, err)
		spec = append(spec, bands)
	}
	return spec, DiffFrames(b.Window(), fr.Hop(), 0.5)
}

func TestVibratoSuppression(t *testing.T) {
	const numBands = 60
	spec, lag := spectrogramOf(t, vibrato(1000, 80, 4, 3, 44100), numBands)

	super, err := Compute(spec, Params{NumBands: numBands, Lag: lag, MaxBins: 3, PositiveDiffs: true})
	require.NoError(t, err)
	plain, err := Compute(spec, Params{NumBands: numBands, Lag: lag, MaxBins: 1, PositiveDiffs: true})
	require.NoError(t, err)

	// Skip the onset of the tone itself.
	skip := 10
	sumSuper, sumPlain := 0.0, 0.0
	for i := skip; i < len(spec)-skip; i++ {
		assert.LessOrEqual(t, super[i], plain[i]+1e-12, "frame %d", i)
		sumSuper += super[i]
		sumPlain += plain[i]
	}
	assert.Greater(t, sumPlain, 0.0)
	assert.Less(t, sumSuper, 0.5*sumPlain)
}
