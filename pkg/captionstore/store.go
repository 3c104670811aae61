// Package captionstore holds the most recent finalized caption cues per
// language and answers overlap queries against reference-timeline windows.
package captionstore

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/livecap/livecap/pkg/vtt"
)

// NotifyFunc is called after a cue has been stored. It runs on the
// writer goroutine, outside the store lock.
type NotifyFunc func(lang string, start, end float64)

// Store is a bounded, per-language, insertion-ordered cue collection.
// There is a single writer (the provider message handler) and multiple
// readers. Cues are kept in arrival order, which is not time order.
type Store struct {
	mu         sync.RWMutex
	maxPerLang int
	cues       map[string][]vtt.Cue
	notify     NotifyFunc
}

// New creates a store for the given languages with capacity maxPerLang
// cues per language. notify may be nil.
func New(languages []string, maxPerLang int, notify NotifyFunc) *Store {
	cues := make(map[string][]vtt.Cue, len(languages))
	for _, lang := range languages {
		cues[lang] = make([]vtt.Cue, 0, maxPerLang)
	}
	return &Store{
		maxPerLang: maxPerLang,
		cues:       cues,
		notify:     notify,
	}
}

// Append stores a finalized cue for lang. A cue with End <= Start is
// clamped to End = Start + 1. When the language buffer is full, the
// oldest-inserted cue is dropped. The change notification fires after
// the cue is visible to readers.
func (s *Store) Append(lang string, cue vtt.Cue) error {
	if cue.Text == "" {
		return fmt.Errorf("empty cue text")
	}
	if !utf8.ValidString(cue.Text) {
		return fmt.Errorf("cue text is not valid UTF-8")
	}
	if cue.End <= cue.Start {
		cue.End = cue.Start + 1.0
	}
	s.mu.Lock()
	buf, ok := s.cues[lang]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("language %q not configured", lang)
	}
	if len(buf) == s.maxPerLang {
		copy(buf, buf[1:])
		buf[len(buf)-1] = cue
	} else {
		buf = append(buf, cue)
	}
	s.cues[lang] = buf
	s.mu.Unlock()
	if s.notify != nil {
		s.notify(lang, cue.Start, cue.End)
	}
	return nil
}

// Overlapping returns all cues for lang whose [Start, End) intersects the
// half-open window [w0, w1), in insertion order. The bounded buffer is
// scanned linearly.
func (s *Store) Overlapping(lang string, w0, w1 float64) []vtt.Cue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []vtt.Cue
	for _, c := range s.cues[lang] {
		if c.End > w0 && c.Start < w1 {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of cues currently held for lang.
func (s *Store) Count(lang string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cues[lang])
}

// All returns a snapshot of the cues for lang in insertion order.
func (s *Store) All(lang string) []vtt.Cue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vtt.Cue, len(s.cues[lang]))
	copy(out, s.cues[lang])
	return out
}
