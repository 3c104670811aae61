package app

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"github.com/livecap/livecap/pkg/logging"
)

type ServerConfig struct {
	LogFormat              string `json:"logformat"`
	LogLevel               string `json:"loglevel"`
	Port                   int    `json:"port"`
	OutputDir              string `json:"outputdir"`
	SegmentDurationS       int    `json:"segmentdurationS"`
	WindowSize             int    `json:"windowsize"`
	ServingWindowSize      int    `json:"servingwindowsize"`
	RequiredBufferSegments int    `json:"requiredbuffersegments"`
	TranscriptionBufferMin int    `json:"transcriptionbuffermin"`
	MaxCuesPerLanguage     int    `json:"maxcuesperlanguage"`
	Languages              string `json:"languages"`
	ProviderURL            string `json:"providerurl"`
	ProviderToken          string `json:"providertoken"`
	AudioPath              string `json:"audiopath"`
	AudioSampleRate        int    `json:"audiosamplerate"`
}

var DefaultConfig = ServerConfig{
	LogFormat:              "text",
	LogLevel:               "info",
	Port:                   8080,
	OutputDir:              "./out",
	SegmentDurationS:       10,
	WindowSize:             12,
	ServingWindowSize:      2,
	RequiredBufferSegments: 6,
	TranscriptionBufferMin: 3,
	MaxCuesPerLanguage:     1000,
	Languages:              "en",
	AudioSampleRate:        16000,
}

// envKeys maps recognized environment variables to config keys.
// Unlisted environment variables are ignored.
var envKeys = map[string]string{
	"SEGMENT_DURATION":         "segmentdurationS",
	"WINDOW_SIZE":              "windowsize",
	"SERVING_WINDOW_SIZE":      "servingwindowsize",
	"REQUIRED_BUFFER_SEGMENTS": "requiredbuffersegments",
	"TRANSCRIPTION_BUFFER_MIN": "transcriptionbuffermin",
	"MAX_CUES_PER_LANGUAGE":    "maxcuesperlanguage",
	"LANGUAGES":                "languages",
	"HTTP_PORT":                "port",
	"OUTPUT_DIR":               "outputdir",
	"PROVIDER_URL":             "providerurl",
	"PROVIDER_TOKEN":           "providertoken",
	"AUDIO_PATH":               "audiopath",
	"AUDIO_SAMPLE_RATE":        "audiosamplerate",
	"LOGLEVEL":                 "loglevel",
	"LOGFORMAT":                "logformat",
}

// LanguageList returns the configured languages. The first entry is the
// source language; the rest are translation targets.
func (c *ServerConfig) LanguageList() []string {
	parts := strings.Split(c.Languages, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if lang := strings.TrimSpace(p); lang != "" {
			langs = append(langs, lang)
		}
	}
	return langs
}

// SourceLanguage returns the language being transcribed.
func (c *ServerConfig) SourceLanguage() string {
	langs := c.LanguageList()
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// SegmentDuration returns the segment duration as a time.Duration.
func (c *ServerConfig) SegmentDuration() time.Duration {
	return time.Duration(c.SegmentDurationS) * time.Second
}

// Validate checks that the configuration can drive the pipeline.
func (c *ServerConfig) Validate() error {
	if c.SegmentDurationS <= 0 {
		return fmt.Errorf("segment duration must be positive, got %d", c.SegmentDurationS)
	}
	if c.ServingWindowSize <= 0 {
		return fmt.Errorf("serving window size must be positive, got %d", c.ServingWindowSize)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory not set")
	}
	if len(c.LanguageList()) == 0 {
		return fmt.Errorf("no languages configured")
	}
	if c.MaxCuesPerLanguage <= 0 {
		return fmt.Errorf("max cues per language must be positive, got %d", c.MaxCuesPerLanguage)
	}
	return nil
}

// LoadConfig loads defaults, config file, command line, and finally applies
// environment variables.
//
// OutputDir is made absolute relative to cwd if needed.
func LoadConfig(args []string, cwd string) (*ServerConfig, error) {
	// First set default values
	k := koanf.New(".")
	defaults := DefaultConfig
	k.Load(structs.Provider(defaults, "json"), nil)

	f := pflag.NewFlagSet("livecap", pflag.ContinueOnError)
	f.Usage = func() {
		parts := strings.Split(args[0], "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, "Run as %s [options]:\n", name)
		f.PrintDefaults()
	}
	cfgFile := f.String("cfg", "", "path to a JSON config file")
	f.Int("port", k.Int("port"), "HTTP port")
	lf := strings.Join(logging.LogFormats, ", ")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", lf))
	ll := strings.Join(logging.LogLevels, ", ")
	f.String("loglevel", k.String("loglevel"), fmt.Sprintf("log level [%s]", ll))
	f.String("outputdir", k.String("outputdir"), "root directory for staging and serving trees")
	f.Int("segmentduration", k.Int("segmentdurationS"), "segment duration (seconds)")
	f.String("languages", k.String("languages"), "comma-separated languages, first is the source")
	f.String("providerurl", k.String("providerurl"), "speech provider websocket URL")
	f.String("audiopath", k.String("audiopath"), "path to the raw PCM audio source (file or FIFO)")
	if err := f.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("command line parse: %w", err)
	}

	// Load the config file provided on the command line.
	if *cfgFile != "" {
		cf := file.Provider(*cfgFile)
		if err := k.Load(cf, json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Possibly override config file with command line parameters
	if err := k.Load(posflag.ProviderWithValue(f, ".", k, func(key, value string) (string, interface{}) {
		if key == "segmentduration" {
			return "segmentdurationS", value
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("parsing cli: %v", err)
	}

	// Overload with environment variables
	k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil)

	// Make the output dir absolute in case it is not already
	outputDir := k.String("outputdir")
	if outputDir != "" && !path.IsAbs(outputDir) {
		outputDir = path.Join(cwd, outputDir)
		k.Load(confmap.Provider(map[string]any{
			"outputdir": outputDir,
		}, "."), nil)
	}

	// Unmarshal into cfg
	var cfg ServerConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
