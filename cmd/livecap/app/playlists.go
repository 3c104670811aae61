package app

import (
	"fmt"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

const (
	audioGroupID     = "audio"
	subtitlesGroupID = "subs"
	// Advertised for the single variant; the transcoder emits H.264 high
	// profile level 3.1 video with AAC-LC audio.
	variantBandwidth = 6_000_000
)

var variantCodecs = []string{"avc1.64001f", "mp4a.40.2", "wvtt"}

func strPtr(s string) *string { return &s }

// buildMediaPlaylist renders a live media playlist for the given segment
// sequence numbers. All entries advertise the full segment duration and
// no endlist tag is written.
func buildMediaPlaylist(seqs []uint64, segDur time.Duration, mediaSeq int, segName func(uint64) string) ([]byte, error) {
	segments := make([]*playlist.MediaSegment, 0, len(seqs))
	for _, seq := range seqs {
		segments = append(segments, &playlist.MediaSegment{
			Duration: segDur,
			URI:      segName(seq),
		})
	}
	m := &playlist.Media{
		Version:        3,
		TargetDuration: int(segDur / time.Second),
		MediaSequence:  mediaSeq,
		Segments:       segments,
	}
	data, err := m.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal media playlist: %w", err)
	}
	return data, nil
}

// buildMasterPlaylist renders the multivariant master playlist: one audio
// rendition, one subtitle rendition per language (only the source language
// is the default), and a single video variant.
func buildMasterPlaylist(langs []string, srcLang string) ([]byte, error) {
	renditions := []*playlist.MultivariantRendition{
		{
			Type:       playlist.MultivariantRenditionTypeAudio,
			GroupID:    audioGroupID,
			Name:       "Audio",
			URI:        strPtr("audio/playlist.m3u8"),
			Default:    true,
			Autoselect: true,
		},
	}
	for _, lang := range langs {
		renditions = append(renditions, &playlist.MultivariantRendition{
			Type:       playlist.MultivariantRenditionTypeSubtitles,
			GroupID:    subtitlesGroupID,
			Name:       lang,
			Language:   lang,
			URI:        strPtr(fmt.Sprintf("subtitles/%s/playlist.m3u8", lang)),
			Default:    lang == srcLang,
			Autoselect: true,
		})
	}
	mv := &playlist.Multivariant{
		Version:             3,
		IndependentSegments: true,
		Renditions:          renditions,
		Variants: []*playlist.MultivariantVariant{
			{
				Bandwidth: variantBandwidth,
				Codecs:    variantCodecs,
				Audio:     audioGroupID,
				Subtitles: subtitlesGroupID,
				URI:       "video/playlist.m3u8",
			},
		},
	}
	data, err := mv.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal master playlist: %w", err)
	}
	return data, nil
}
