package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goccmack/superflux/errkind"
)

func ramp(n int) *Signal {
	s := &Signal{Samples: make([]float64, n), SampleRate: 1000}
	for i := range s.Samples {
		s.Samples[i] = float64(i + 1)
	}
	return s
}

func TestHopSize(t *testing.T) {
	assert.Equal(t, 441, HopSize(44100, 100))
	assert.Equal(t, 221, HopSize(22050, 100))
	assert.Equal(t, 220, HopSize(44100, 200))
}

func TestFramerOffline(t *testing.T) {
	f, err := NewFramer(ramp(10), 250, 4, false) // hop 4
	require.NoError(t, err)
	assert.Equal(t, 4, f.Hop())
	assert.Equal(t, 3, f.NumFrames())

	var frames []Frame
	for fr, ok := f.Next(); ok; fr, ok = f.Next() {
		frames = append(frames, fr)
	}
	require.Len(t, frames, 3)
	assert.Equal(t, []float64{0, 0, 1, 2}, frames[0].Samples)
	assert.Equal(t, []float64{3, 4, 5, 6}, frames[1].Samples)
	assert.Equal(t, []float64{7, 8, 9, 10}, frames[2].Samples)

	_, ok := f.Next()
	assert.False(t, ok, "framer must not restart")
}

func TestFramerOnlineIsCausal(t *testing.T) {
	f, err := NewFramer(ramp(10), 250, 4, true)
	require.NoError(t, err)

	for fr, ok := f.Next(); ok; fr, ok = f.Next() {
		require.Len(t, fr.Samples, 4)
		ref := fr.Index * f.Hop()
		// The last sample of the frame is the reference sample.
		assert.Equal(t, float64(ref+1), fr.Samples[3])
		for _, v := range fr.Samples {
			assert.LessOrEqual(t, v, float64(ref+1))
		}
	}
}

func TestFramerEmptySignal(t *testing.T) {
	f, err := NewFramer(&Signal{SampleRate: 44100}, 100, 2048, false)
	require.NoError(t, err)
	assert.Equal(t, 0, f.NumFrames())
	_, ok := f.Next()
	assert.False(t, ok)
}

func TestFramerConfigErrors(t *testing.T) {
	sig := ramp(10)
	tests := []struct {
		name      string
		sig       *Signal
		fps       float64
		frameSize int
	}{
		{"zero fps", sig, 0, 4},
		{"negative frame size", sig, 100, -1},
		{"no sample rate", &Signal{}, 100, 4},
		{"fps above sample rate", sig, 5000, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFramer(tt.sig, tt.fps, tt.frameSize, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errkind.ErrConfiguration))
		})
	}
}

func TestFrameTime(t *testing.T) {
	assert.InDelta(t, 1.0, FrameTime(100, 441, 44100), 1e-12)
}

func TestLoadWav(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "stereo.wav")
	out, err := os.Create(fname)
	require.NoError(t, err)
	enc := wav.NewEncoder(out, 8000, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           []int{16384, -1, -16384, -1, 0, -1},
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())

	sig, err := LoadWav(fname)
	require.NoError(t, err)
	assert.Equal(t, 8000, sig.SampleRate)
	assert.Equal(t, []float64{0.5, -0.5, 0}, sig.Samples)
}

func TestLoadWavInvalid(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(fname, []byte("not a wav file at all"), 0o644))
	_, err := LoadWav(fname)
	assert.Error(t, err)
}
