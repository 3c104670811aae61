package app

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livecap/livecap/pkg/captionstore"
	"github.com/livecap/livecap/pkg/timeline"
	"github.com/livecap/livecap/pkg/vtt"
)

// Slack around a cue when choosing segments to rebuild. Absorbs
// boundary races between the provider clock and the segment timeline.
const cueTriggerSlackS = 5.0

// vttBuilder produces one WebVTT file per (segment, language) pair from
// the current caption store contents and keeps the staging subtitle
// playlists up to date.
type vttBuilder struct {
	layout  *outputLayout
	tl      *timeline.Timeline
	store   *captionstore.Store
	langs   []string
	log     *slog.Logger
	onBuild func(lang string, ok bool)

	mu        sync.Mutex
	knownSeqs []uint64 // ascending, from the latest tracker observation
}

func newVTTBuilder(layout *outputLayout, tl *timeline.Timeline, store *captionstore.Store,
	langs []string, onBuild func(lang string, ok bool), log *slog.Logger) *vttBuilder {
	return &vttBuilder{
		layout:  layout,
		tl:      tl,
		store:   store,
		langs:   langs,
		log:     log.With("component", "builder"),
		onBuild: onBuild,
	}
}

// buildSegment writes the WebVTT file for (seq, lang). The file is
// complete even when no cue overlaps the window. The staging playlist is
// refreshed separately, after the whole batch of builds, so that it never
// advertises a file that has not been written yet.
func (b *vttBuilder) buildSegment(seq uint64, lang string) error {
	w0, w1 := b.tl.SegmentWindow(seq)
	var clipped []vtt.Cue
	for _, c := range b.store.Overlapping(lang, w0, w1) {
		if local, ok := vtt.Clip(c, w0, w1); ok {
			clipped = append(clipped, local)
		}
	}
	var buf bytes.Buffer
	if err := vtt.WriteSegment(&buf, clipped); err != nil {
		return fmt.Errorf("serialize vtt seq %d lang %s: %w", seq, lang, err)
	}
	path := b.layout.subtitleSegment(lang, seq)
	err := writeFileRetry(b.log, path, buf.Bytes(), fileWriteAttempts, fileWriteRetryDelay)
	if err != nil {
		vttWriteFailuresTotal.WithLabelValues(lang).Inc()
	} else {
		vttWritesTotal.WithLabelValues(lang).Inc()
	}
	if b.onBuild != nil {
		b.onBuild(lang, err == nil)
	}
	return err
}

// writeStagingPlaylist regenerates the staging subtitle playlist for lang
// from the currently known segments.
func (b *vttBuilder) writeStagingPlaylist(lang string) error {
	b.mu.Lock()
	seqs := append([]uint64(nil), b.knownSeqs...)
	b.mu.Unlock()
	if len(seqs) == 0 {
		return nil
	}
	mediaSeq := 0
	if first, ok := b.tl.FirstSeq(); ok && seqs[0] >= first {
		mediaSeq = int(seqs[0] - first)
	}
	segDur := time.Duration(b.tl.SegmentDuration() * float64(time.Second))
	data, err := buildMediaPlaylist(seqs, segDur, mediaSeq, vttFileName)
	if err != nil {
		return err
	}
	return writeFileRetry(b.log, b.layout.subtitlePlaylist(lang), data, fileWriteAttempts, fileWriteRetryDelay)
}

// handleSegments builds subtitle files for newly observed segments, and
// rebuilds everything on a periodic refresh to heal races between cue
// arrival and segment registration.
func (b *vttBuilder) handleSegments(obs *segObservation) {
	b.mu.Lock()
	b.knownSeqs = append([]uint64(nil), obs.all...)
	b.mu.Unlock()

	targets := obs.added
	if obs.refresh {
		targets = obs.all
	}
	for _, seq := range targets {
		for _, lang := range b.langs {
			if err := b.buildSegment(seq, lang); err != nil {
				b.log.Error("segment build failed", "seq", seq, "lang", lang, "err", err)
			}
		}
	}
	for _, lang := range b.langs {
		if err := b.writeStagingPlaylist(lang); err != nil {
			b.log.Error("staging playlist write failed", "lang", lang, "err", err)
		}
	}
}

// handleCue rebuilds every known segment whose window lies within slack of
// the newly finalized cue. If the cue overlaps no window under the strict
// test, the latest known segment is rebuilt so the cue surfaces during
// steady-state lag.
func (b *vttBuilder) handleCue(lang string, start, end float64) {
	b.mu.Lock()
	seqs := append([]uint64(nil), b.knownSeqs...)
	b.mu.Unlock()
	if len(seqs) == 0 {
		return
	}

	var targets []uint64
	strictHit := false
	for _, seq := range seqs {
		w0, w1 := b.tl.SegmentWindow(seq)
		if end > w0 && start < w1 {
			strictHit = true
		}
		if end+cueTriggerSlackS > w0 && start-cueTriggerSlackS < w1 {
			targets = append(targets, seq)
		}
	}
	if !strictHit {
		targets = []uint64{seqs[len(seqs)-1]}
	}
	for _, seq := range targets {
		if err := b.buildSegment(seq, lang); err != nil {
			b.log.Error("cue-triggered build failed", "seq", seq, "lang", lang, "err", err)
		}
	}
	if err := b.writeStagingPlaylist(lang); err != nil {
		b.log.Error("staging playlist write failed", "lang", lang, "err", err)
	}
}
