package calibrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddChunk_EmitsMeanAfter250ChunksThenResets(t *testing.T) {
	c := New(DefaultWindowChunks)
	var emitted []float64
	c.OnMeasurement(func(e float64) { emitted = append(emitted, e) })

	chunk := make([]int16, 960)
	for i := range chunk {
		chunk[i] = 1000 // Σ s_i^2 = 960 * 1_000_000 = 9.6e8 per chunk
	}

	for i := 0; i < DefaultWindowChunks; i++ {
		c.AddChunk(chunk)
	}

	assert.Len(t, emitted, 1)
	assert.InDelta(t, 9.6e8, emitted[0], 1)

	// Window reset: one more chunk must not re-emit.
	c.AddChunk(chunk)
	assert.Len(t, emitted, 1)
}

func TestEnergy_AllZeroChunkIsZero(t *testing.T) {
	assert.Equal(t, float64(0), Energy(make([]int16, 960)))
}

func TestEnergy_SumOfSquares(t *testing.T) {
	assert.Equal(t, float64(1+4+9), Energy([]int16{1, 2, 3}))
}

func TestAddChunk_MonotonicWindowsIndependent(t *testing.T) {
	c := New(2)
	var emitted []float64
	c.OnMeasurement(func(e float64) { emitted = append(emitted, e) })

	c.AddChunk([]int16{1})
	c.AddChunk([]int16{1})
	assert.Len(t, emitted, 1)

	c.AddChunk([]int16{2})
	c.AddChunk([]int16{2})
	assert.Len(t, emitted, 2)
	assert.NotEqual(t, emitted[0], emitted[1])
}
