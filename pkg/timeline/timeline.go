// Package timeline projects events from two independent clocks onto one
// shared axis measured in seconds from stream origin: the transcoder's
// segment sequence numbers and the speech provider's utterance timestamps.
package timeline

import "sync"

// Timeline holds the stream origin and the utterance clock normalization.
//
// The origin T0 is fixed at the moment the first media segment is observed
// as firstSeq * segDur. The provider clock is normalized by recording U0
// at the first finalized utterance; only differences within a session need
// to be accurate. An additive offset is kept as a seam for drift correction
// and is initialized to 0.
type Timeline struct {
	mu        sync.Mutex
	segDur    float64
	originSet bool
	firstSeq  uint64
	u0Set     bool
	u0        float64
	offset    float64
}

// New returns a Timeline for segments of segDur seconds.
func New(segDur float64) *Timeline {
	return &Timeline{segDur: segDur}
}

// SetOrigin fixes the origin from the first observed segment sequence
// number. Only the first call has any effect.
func (t *Timeline) SetOrigin(firstSeq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.originSet {
		return
	}
	t.originSet = true
	t.firstSeq = firstSeq
}

// OriginSet reports whether the origin has been fixed.
func (t *Timeline) OriginSet() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.originSet
}

// FirstSeq returns the sequence number that defines the origin.
func (t *Timeline) FirstSeq() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstSeq, t.originSet
}

// SegmentWindow returns the reference-timeline window [start, end) of seq.
// Before the origin is set, seq is treated as its own origin so that the
// window starts at 0.
func (t *Timeline) SegmentWindow(seq uint64) (start, end float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	first := seq
	if t.originSet {
		first = t.firstSeq
	}
	if seq < first {
		return 0, t.segDur
	}
	start = float64(seq-first) * t.segDur
	return start, start + t.segDur
}

// SegmentDuration returns the configured segment duration in seconds.
func (t *Timeline) SegmentDuration() float64 {
	return t.segDur
}

// RelUtteranceTime normalizes a provider utterance timestamp to the
// reference timeline. The first call records U0; later calls return
// ts - U0 + offset.
func (t *Timeline) RelUtteranceTime(ts float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.u0Set {
		t.u0Set = true
		t.u0 = ts
	}
	return ts - t.u0 + t.offset
}

// SetUtteranceOffset adjusts the additive utterance offset.
func (t *Timeline) SetUtteranceOffset(offset float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offset = offset
}
