package app

import (
	"log/slog"
	"sync"
)

// admissionGate delays public serving until enough material has
// accumulated for captioned playback from the first served segment. It is
// one-shot: once open it never closes.
type admissionGate struct {
	requiredSegments int
	requiredCues     int
	langs            []string
	log              *slog.Logger

	mu           sync.Mutex
	segments     map[uint64]bool
	sourceCues   int
	lastBuildOK  map[string]bool
	opened       bool
	firstServing uint64
	openedCh     chan struct{}
}

func newAdmissionGate(requiredSegments, requiredCues int, langs []string, log *slog.Logger) *admissionGate {
	ok := make(map[string]bool, len(langs))
	return &admissionGate{
		requiredSegments: requiredSegments,
		requiredCues:     requiredCues,
		langs:            langs,
		log:              log.With("component", "gate"),
		segments:         make(map[uint64]bool),
		lastBuildOK:      ok,
		openedCh:         make(chan struct{}),
	}
}

// noteSegments records observed segment sequence numbers.
func (g *admissionGate) noteSegments(seqs []uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, seq := range seqs {
		g.segments[seq] = true
	}
	g.maybeOpen()
}

// noteSourceCue records one finalized cue in the source language.
func (g *admissionGate) noteSourceCue() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sourceCues++
	g.maybeOpen()
}

// noteBuild records the outcome of the most recent VTT build per language.
func (g *admissionGate) noteBuild(lang string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastBuildOK[lang] = ok
	g.maybeOpen()
}

// maybeOpen opens the gate when all preconditions hold. Caller holds g.mu.
func (g *admissionGate) maybeOpen() {
	if g.opened {
		return
	}
	if len(g.segments) < g.requiredSegments || g.sourceCues < g.requiredCues {
		return
	}
	for _, lang := range g.langs {
		if !g.lastBuildOK[lang] {
			return
		}
	}
	first := uint64(0)
	set := false
	for seq := range g.segments {
		if !set || seq < first {
			first = seq
			set = true
		}
	}
	g.opened = true
	g.firstServing = first
	gateOpenGauge.Set(1)
	g.log.Info("buffer admission gate open", "firstServingSegment", first,
		"segments", len(g.segments), "sourceCues", g.sourceCues)
	close(g.openedCh)
}

// isOpen reports whether the gate has opened.
func (g *admissionGate) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

// firstServingSegment returns the latched first serving sequence number.
// Only valid after the gate has opened.
func (g *admissionGate) firstServingSegment() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstServing
}

// openChan is closed when the gate opens.
func (g *admissionGate) openChan() <-chan struct{} {
	return g.openedCh
}
