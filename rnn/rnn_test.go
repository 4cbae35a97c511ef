package rnn

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goccmack/superflux/errkind"
)

func testWeights() *Weights {
	return &Weights{
		InputSize:        2,
		HiddenSize:       3,
		InputWeights:     []float64{0.5, 1.5, -0.3, 0.8, 0.1, 0.2},
		RecurrentWeights: []float64{0.1, 0, 0, 0, 0.2, 0, 0.05, 0.05, 0.05},
		HiddenBias:       []float64{0, -0.1, 0.1},
		OutputWeights:    []float64{2, 1, -1},
		OutputBias:       -1,
	}
}

func run(t *testing.T, n *Network, xs []float64) []float64 {
	t.Helper()
	st := n.NewState()
	out := make([]float64, len(xs))
	for i, x := range xs {
		var err error
		out[i], err = n.Score(x, st)
		require.NoError(t, err)
	}
	return out
}

func TestScoreRangeAndDeterminism(t *testing.T) {
	n, err := NewNetwork(testWeights())
	require.NoError(t, err)
	xs := []float64{0, 0.1, 3, 0.2, 0, 0, 5, 1}
	a := run(t, n, xs)
	b := run(t, n, xs)
	assert.Equal(t, a, b)
	for _, y := range a {
		assert.Greater(t, y, 0.0)
		assert.Less(t, y, 1.0)
	}
}

func TestScoreIsCausal(t *testing.T) {
	n, err := NewNetwork(testWeights())
	require.NoError(t, err)
	full := run(t, n, []float64{1, 2, 3, 4, 5, 6})
	prefix := run(t, n, []float64{1, 2, 3})
	assert.Equal(t, prefix, full[:3])
	other := run(t, n, []float64{1, 2, 3, -9, -9, -9})
	assert.Equal(t, full[:3], other[:3])
}

func TestReset(t *testing.T) {
	n, err := NewNetwork(testWeights())
	require.NoError(t, err)
	st := n.NewState()
	first, err := n.Score(1, st)
	require.NoError(t, err)
	_, err = n.Score(2, st)
	require.NoError(t, err)
	st.Reset()
	again, err := n.Score(1, st)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestNonFinite(t *testing.T) {
	n, err := NewNetwork(testWeights())
	require.NoError(t, err)
	_, err = n.Score(math.Inf(1), n.NewState())
	assert.True(t, errors.Is(err, errkind.ErrComputation))

	w := testWeights()
	w.OutputBias = math.NaN()
	n, err = NewNetwork(w)
	require.NoError(t, err)
	_, err = n.Score(1, n.NewState())
	assert.True(t, errors.Is(err, errkind.ErrComputation))
}

func TestWeightsRoundTrip(t *testing.T) {
	buf, err := MarshalWeights(testWeights())
	require.NoError(t, err)

	fname := filepath.Join(t.TempDir(), "net.pb")
	require.NoError(t, os.WriteFile(fname, buf, 0o644))
	w, err := LoadWeights(fname)
	require.NoError(t, err)
	assert.Equal(t, testWeights(), w)
}

func TestWeightsShapeErrors(t *testing.T) {
	w := testWeights()
	w.HiddenBias = w.HiddenBias[:2]
	_, err := NewNetwork(w)
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))

	_, err = NewNetwork(&Weights{})
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))

	_, err = NewNetwork(nil)
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))

	_, err = UnmarshalWeights([]byte{0xff, 0xff, 0xff})
	assert.True(t, errors.Is(err, errkind.ErrConfiguration))
}
