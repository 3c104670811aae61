package app

import (
	"encoding/json"
	"fmt"
)

// msgKind discriminates decoded provider messages.
type msgKind int

const (
	msgUnknown msgKind = iota
	msgTranscript
	msgTranslation
	msgSessionEnd
)

// utterance is the timed text payload shared by transcripts and the older
// translation message shape. Times are provider session clock seconds.
type utterance struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// providerMsg is one decoded message from the speech provider.
type providerMsg struct {
	Kind     msgKind
	IsFinal  bool
	Language string // empty for transcripts, target language for translations
	Utt      utterance
}

type rawMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type transcriptData struct {
	IsFinal   bool      `json:"is_final"`
	Utterance utterance `json:"utterance"`
}

// translationData covers both wire shapes the provider has used for
// translations. The newer shape nests everything under "translation"; the
// older one pairs the source utterance with a translated text.
type translationData struct {
	Translation *struct {
		Start          float64 `json:"start"`
		End            float64 `json:"end"`
		Text           string  `json:"text"`
		TargetLanguage string  `json:"target_language"`
	} `json:"translation"`
	Utterance           *utterance `json:"utterance"`
	TranslatedUtterance *struct {
		Text string `json:"text"`
	} `json:"translated_utterance"`
	TargetLanguage string `json:"target_language"`
}

// parseProviderMsg decodes one provider JSON message.
func parseProviderMsg(data []byte) (providerMsg, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return providerMsg{}, fmt.Errorf("decode provider message: %w", err)
	}
	switch raw.Type {
	case "transcript":
		var td transcriptData
		if err := json.Unmarshal(raw.Data, &td); err != nil {
			return providerMsg{}, fmt.Errorf("decode transcript: %w", err)
		}
		return providerMsg{
			Kind:    msgTranscript,
			IsFinal: td.IsFinal,
			Utt:     td.Utterance,
		}, nil
	case "translation":
		var td translationData
		if err := json.Unmarshal(raw.Data, &td); err != nil {
			return providerMsg{}, fmt.Errorf("decode translation: %w", err)
		}
		switch {
		case td.Translation != nil:
			return providerMsg{
				Kind:     msgTranslation,
				IsFinal:  true,
				Language: td.Translation.TargetLanguage,
				Utt: utterance{
					Start: td.Translation.Start,
					End:   td.Translation.End,
					Text:  td.Translation.Text,
				},
			}, nil
		case td.Utterance != nil && td.TranslatedUtterance != nil:
			return providerMsg{
				Kind:     msgTranslation,
				IsFinal:  true,
				Language: td.TargetLanguage,
				Utt: utterance{
					Start: td.Utterance.Start,
					End:   td.Utterance.End,
					Text:  td.TranslatedUtterance.Text,
				},
			}, nil
		default:
			return providerMsg{}, fmt.Errorf("translation without payload: %w", errUnknownMessage)
		}
	case "post_final_transcript":
		return providerMsg{Kind: msgSessionEnd}, nil
	default:
		return providerMsg{}, fmt.Errorf("message type %q: %w", raw.Type, errUnknownMessage)
	}
}
