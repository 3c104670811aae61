package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const stallRecheckInterval = 500 * time.Millisecond

// dripFeed releases one segment per segment duration into the serving
// tree, keeping a fixed-size sliding window across all tracks. All tracks
// share one window and one media sequence counter, so the served
// playlists always advertise the same segments in the same positions.
//
// All cadence state is owned by the single run goroutine; HTTP readers
// observe only the atomically written files.
type dripFeed struct {
	layout     *outputLayout
	langs      []string
	srcLang    string
	segDur     time.Duration
	windowSize int
	log        *slog.Logger

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)

	first       uint64
	window      []uint64
	servingSeq  int
	nextIndex   uint64
	nextRelease time.Time
}

func newDripFeed(layout *outputLayout, langs []string, srcLang string,
	segDur time.Duration, windowSize int, log *slog.Logger) *dripFeed {
	return &dripFeed{
		layout:     layout,
		langs:      langs,
		srcLang:    srcLang,
		segDur:     segDur,
		windowSize: windowSize,
		log:        log.With("component", "dripfeed"),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// run waits for the gate, publishes the first serving segment, and then
// advances one segment per segment duration until the context is done.
// Failed releases are logged and retried on the next cadence tick; an
// error never ends the feed.
func (d *dripFeed) run(ctx context.Context, gate *admissionGate) {
	select {
	case <-ctx.Done():
		return
	case <-gate.openChan():
	}
	for {
		err := d.start(gate.firstServingSegment())
		if err == nil {
			break
		}
		d.log.Error("starting drip-feed failed, retrying", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(stallRecheckInterval):
		}
	}
	for {
		wait := d.nextRelease.Sub(d.now())
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		d.advance(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// advance attempts the next release. On failure the cadence state is left
// untouched and the same segment is retried one segment duration later.
func (d *dripFeed) advance(ctx context.Context) {
	if err := d.tryRelease(ctx); err != nil {
		d.log.Error("release failed, retrying next cycle", "seq", d.first+d.nextIndex, "err", err)
		d.nextRelease = d.now().Add(d.segDur)
	}
}

// start publishes the initial single-segment window.
func (d *dripFeed) start(first uint64) error {
	d.first = first
	d.window = []uint64{first}
	d.servingSeq = 0
	d.nextIndex = 1
	if err := d.materialize(first); err != nil {
		return err
	}
	if err := d.writeServingPlaylists(); err != nil {
		return err
	}
	d.nextRelease = d.now().Add(d.segDur)
	d.log.Info("serving started", "firstSeq", first)
	return nil
}

// tryRelease publishes the next segment. If its media files have not been
// staged yet the release stalls: the window and sequence counter stay
// untouched and the candidate is re-checked every 500 ms. After a stall,
// cadence resumes from the current wall clock instead of catching up.
func (d *dripFeed) tryRelease(ctx context.Context) error {
	seq := d.first + d.nextIndex
	stalled := false
	for !d.stagingReady(seq) {
		if !stalled {
			stalled = true
			stallsTotal.Inc()
			d.log.Warn("release stalled, staging files missing", "seq", seq)
		}
		if ctx.Err() != nil {
			return nil
		}
		d.sleep(stallRecheckInterval)
	}
	if err := d.release(seq); err != nil {
		return err
	}
	if stalled {
		d.nextRelease = d.now().Add(d.segDur)
		d.log.Info("release recovered from stall", "seq", seq)
	} else {
		d.nextRelease = d.nextRelease.Add(d.segDur)
	}
	d.nextIndex++
	return nil
}

// stagingReady reports whether the transcoder has produced both media
// files for seq. Subtitle files are not required; a missing VTT is
// replaced by an empty one at materialization.
func (d *dripFeed) stagingReady(seq uint64) bool {
	return fileExists(d.layout.videoSegment(seq)) && fileExists(d.layout.audioSegment(seq))
}

// release appends seq to the shared window, trims it to the serving
// window size, and rewrites all serving playlists.
func (d *dripFeed) release(seq uint64) error {
	if err := d.materialize(seq); err != nil {
		return err
	}
	d.window = append(d.window, seq)
	for len(d.window) > d.windowSize {
		d.window = d.window[1:]
		d.servingSeq++
	}
	if err := d.writeServingPlaylists(); err != nil {
		return err
	}
	releasesTotal.Inc()
	servingMediaSequence.Set(float64(d.servingSeq))
	d.log.Info("segment released", "seq", seq, "mediaSequence", d.servingSeq)
	return nil
}

// materialize hard-links the staged files for seq into the serving tree
// so that transcoder retention cannot remove them out from under players.
func (d *dripFeed) materialize(seq uint64) error {
	name := segmentFileName(seq)
	if err := linkOrCopy(d.layout.videoSegment(seq), d.layout.servingPath("video/"+name)); err != nil {
		return fmt.Errorf("materialize video seq %d: %w", seq, err)
	}
	if err := linkOrCopy(d.layout.audioSegment(seq), d.layout.servingPath("audio/"+name)); err != nil {
		return fmt.Errorf("materialize audio seq %d: %w", seq, err)
	}
	for _, lang := range d.langs {
		src := d.layout.subtitleSegment(lang, seq)
		dst := d.layout.servingPath(fmt.Sprintf("subtitles/%s/%s", lang, vttFileName(seq)))
		if fileExists(src) {
			if err := linkOrCopy(src, dst); err != nil {
				return fmt.Errorf("materialize subtitles %s seq %d: %w", lang, seq, err)
			}
			continue
		}
		// The builder has not produced this file yet; serve an empty
		// segment rather than a playlist entry pointing at nothing.
		d.log.Warn("subtitle segment missing at release, serving empty", "lang", lang, "seq", seq)
		if err := writeFileRetry(d.log, dst, []byte("WEBVTT\n\n"), fileWriteAttempts, fileWriteRetryDelay); err != nil {
			return fmt.Errorf("write empty subtitles %s seq %d: %w", lang, seq, err)
		}
	}
	return nil
}

// writeServingPlaylists rewrites every serving media playlist plus the
// master. All playlists share the window and media sequence.
func (d *dripFeed) writeServingPlaylists() error {
	media, err := buildMediaPlaylist(d.window, d.segDur, d.servingSeq, segmentFileName)
	if err != nil {
		return err
	}
	if err := writeFileRetry(d.log, d.layout.servingPath("video/playlist.m3u8"), media, fileWriteAttempts, fileWriteRetryDelay); err != nil {
		return err
	}
	if err := writeFileRetry(d.log, d.layout.servingPath("audio/playlist.m3u8"), media, fileWriteAttempts, fileWriteRetryDelay); err != nil {
		return err
	}
	subs, err := buildMediaPlaylist(d.window, d.segDur, d.servingSeq, vttFileName)
	if err != nil {
		return err
	}
	for _, lang := range d.langs {
		path := d.layout.servingPath(fmt.Sprintf("subtitles/%s/playlist.m3u8", lang))
		if err := writeFileRetry(d.log, path, subs, fileWriteAttempts, fileWriteRetryDelay); err != nil {
			return err
		}
	}
	master, err := buildMasterPlaylist(d.langs, d.srcLang)
	if err != nil {
		return err
	}
	return writeFileRetry(d.log, d.layout.servingMaster(), master, fileWriteAttempts, fileWriteRetryDelay)
}
