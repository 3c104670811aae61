package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/livecap/livecap/pkg/captionstore"
	"github.com/livecap/livecap/pkg/timeline"
	"github.com/livecap/livecap/pkg/vtt"
)

const (
	trackerPollInterval = time.Second
	cueEventBuffer      = 64
	segEventBuffer      = 16
	audioFrameBuffer    = 32
)

type cueEvent struct {
	lang       string
	start, end float64
}

// Pipeline owns the captioning core: timeline, caption store, segment
// tracker, VTT builder, admission gate, and drip-feed. Each long-lived
// activity runs in its own goroutine; they communicate through bounded
// channels with a single consumer each.
type Pipeline struct {
	Cfg    *ServerConfig
	Layout *outputLayout
	Gate   *admissionGate

	tl      *timeline.Timeline
	store   *captionstore.Store
	tracker *segmentTracker
	builder *vttBuilder
	drip    *dripFeed
	srcLang string
	log     *slog.Logger

	segCh chan *segObservation
	cueCh chan cueEvent
}

// NewPipeline builds all components and creates the output directory
// trees.
func NewPipeline(cfg *ServerConfig) (*Pipeline, error) {
	log := slog.Default()
	layout := newOutputLayout(cfg.OutputDir)
	langs := cfg.LanguageList()
	if err := layout.mkDirs(langs); err != nil {
		return nil, err
	}

	p := &Pipeline{
		Cfg:     cfg,
		Layout:  layout,
		srcLang: cfg.SourceLanguage(),
		log:     log.With("component", "pipeline"),
		segCh:   make(chan *segObservation, segEventBuffer),
		cueCh:   make(chan cueEvent, cueEventBuffer),
	}
	p.tl = timeline.New(float64(cfg.SegmentDurationS))
	p.store = captionstore.New(langs, cfg.MaxCuesPerLanguage, p.onCueStored)
	p.tracker = newSegmentTracker(layout, p.tl, log)
	p.Gate = newAdmissionGate(cfg.RequiredBufferSegments, cfg.TranscriptionBufferMin, langs, log)
	p.builder = newVTTBuilder(layout, p.tl, p.store, langs, p.Gate.noteBuild, log)
	p.drip = newDripFeed(layout, langs, p.srcLang, cfg.SegmentDuration(), cfg.ServingWindowSize, log)
	return p, nil
}

// onCueStored runs on the provider ingest goroutine after a cue became
// visible in the store.
func (p *Pipeline) onCueStored(lang string, start, end float64) {
	cuesStoredTotal.WithLabelValues(lang).Inc()
	if lang == p.srcLang {
		p.Gate.noteSourceCue()
	}
	select {
	case p.cueCh <- cueEvent{lang: lang, start: start, end: end}:
	default:
		// The builder is behind; the periodic refresh will pick the cue up.
		p.log.Warn("cue event dropped, builder busy", "lang", lang)
	}
}

// handleProviderMessage stores finalized utterances and translations on
// the reference timeline. Interim transcripts are ignored.
func (p *Pipeline) handleProviderMessage(msg providerMsg) {
	switch msg.Kind {
	case msgTranscript:
		if !msg.IsFinal {
			return
		}
		p.appendCue(p.srcLang, msg.Utt)
	case msgTranslation:
		p.appendCue(msg.Language, msg.Utt)
	case msgSessionEnd:
		p.log.Info("provider signalled end of session")
	}
}

func (p *Pipeline) appendCue(lang string, u utterance) {
	cue := vtt.Cue{
		Start: p.tl.RelUtteranceTime(u.Start),
		End:   p.tl.RelUtteranceTime(u.End),
		Text:  u.Text,
	}
	if err := p.store.Append(lang, cue); err != nil {
		p.log.Warn("discarding cue", "lang", lang, "err", err)
	}
}

// Run starts all pipeline activities and blocks until the context is
// cancelled and they have wound down. Failures of individual activities
// are logged; only the provider ingest may end early (audio exhausted).
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runTracker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runBuilder(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.drip.run(ctx, p.Gate)
	}()

	if p.Cfg.ProviderURL != "" && p.Cfg.AudioPath != "" {
		frames := make(chan []byte, audioFrameBuffer)
		client := newProviderClient(p.Cfg.ProviderURL, p.Cfg.ProviderToken,
			frames, p.handleProviderMessage, p.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runAudioSource(ctx, p.Cfg.AudioPath, p.Cfg.AudioSampleRate, frames, p.log); err != nil {
				p.log.Error("audio source stopped", "err", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.run(ctx); err != nil && ctx.Err() == nil {
				p.log.Error("provider ingest stopped", "err", err)
			}
		}()
	} else {
		p.log.Warn("provider ingest disabled, missing provider URL or audio path")
	}

	wg.Wait()
	return nil
}

// runTracker polls the transcoder playlist at 1 Hz and fans observations
// out to the gate and the builder.
func (p *Pipeline) runTracker(ctx context.Context) {
	ticker := time.NewTicker(trackerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		obs, err := p.tracker.poll()
		if err != nil {
			p.log.Warn("tracker poll failed", "err", err)
			continue
		}
		if obs == nil {
			continue
		}
		segmentsObservedTotal.Add(float64(len(obs.added)))
		p.Gate.noteSegments(obs.all)
		select {
		case p.segCh <- obs:
		case <-ctx.Done():
			return
		}
	}
}

// runBuilder is the single consumer of segment and cue events.
func (p *Pipeline) runBuilder(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs := <-p.segCh:
			p.builder.handleSegments(obs)
		case ev := <-p.cueCh:
			p.builder.handleCue(ev.lang, ev.start, ev.end)
		}
	}
}
