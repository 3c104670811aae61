package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOriginOnce(t *testing.T) {
	tl := New(10)
	assert.False(t, tl.OriginSet())
	tl.SetOrigin(42)
	require.True(t, tl.OriginSet())
	first, ok := tl.FirstSeq()
	require.True(t, ok)
	assert.Equal(t, uint64(42), first)

	// Later calls are no-ops.
	tl.SetOrigin(100)
	first, _ = tl.FirstSeq()
	assert.Equal(t, uint64(42), first)
}

func TestSegmentWindow(t *testing.T) {
	tl := New(10)
	tl.SetOrigin(5)

	testCases := []struct {
		seq         uint64
		wantedStart float64
		wantedEnd   float64
	}{
		{5, 0, 10},
		{6, 10, 20},
		{11, 60, 70},
	}
	for _, tc := range testCases {
		start, end := tl.SegmentWindow(tc.seq)
		assert.Equal(t, tc.wantedStart, start, "seq=%d", tc.seq)
		assert.Equal(t, tc.wantedEnd, end, "seq=%d", tc.seq)
	}
}

func TestSegmentWindowBeforeOrigin(t *testing.T) {
	tl := New(10)
	start, end := tl.SegmentWindow(7)
	assert.Equal(t, 0.0, start)
	assert.Equal(t, 10.0, end)
}

func TestRelUtteranceTime(t *testing.T) {
	tl := New(10)
	// The provider clock may start anywhere; the first value defines U0.
	assert.Equal(t, 0.0, tl.RelUtteranceTime(1234.5))
	assert.Equal(t, 2.5, tl.RelUtteranceTime(1237.0))
	assert.Equal(t, 10.0, tl.RelUtteranceTime(1244.5))
}

func TestUtteranceOffset(t *testing.T) {
	tl := New(10)
	tl.RelUtteranceTime(0)
	tl.SetUtteranceOffset(1.5)
	assert.Equal(t, 4.5, tl.RelUtteranceTime(3.0))
}
