package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	osArgs := []string{"/path/livecap"}
	cfg, err := LoadConfig(osArgs, "/root")
	assert.NoError(t, err)
	c := DefaultConfig
	c.OutputDir = "/root/out"
	assert.Equal(t, c, *cfg)
}

func TestCommandLine(t *testing.T) {
	osArgs := []string{"/path/livecap", "--loglevel", "debug", "--languages", "ru,en,nl",
		"--segmentduration", "6", "--outputdir", "/data/out"}
	cfg, err := LoadConfig(osArgs, "/root")
	assert.NoError(t, err)
	c := DefaultConfig
	c.LogLevel = "debug"
	c.Languages = "ru,en,nl"
	c.SegmentDurationS = 6
	c.OutputDir = "/data/out"
	assert.Equal(t, c, *cfg)
}

func TestEnv(t *testing.T) {
	osArgs := []string{"/path/livecap", "--loglevel", "debug"}
	t.Setenv("LOGLEVEL", "warn")
	t.Setenv("SEGMENT_DURATION", "4")
	t.Setenv("LANGUAGES", "de")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("PROVIDER_URL", "wss://stt.example.com/v1")
	cfg, err := LoadConfig(osArgs, "/root")
	assert.NoError(t, err)
	c := DefaultConfig
	c.OutputDir = "/root/out"
	c.LogLevel = "warn"
	c.SegmentDurationS = 4
	c.Languages = "de"
	c.Port = 9000
	c.ProviderURL = "wss://stt.example.com/v1"
	assert.Equal(t, c, *cfg)
}

func TestLanguageList(t *testing.T) {
	c := DefaultConfig
	c.Languages = "ru, en ,nl"
	assert.Equal(t, []string{"ru", "en", "nl"}, c.LanguageList())
	assert.Equal(t, "ru", c.SourceLanguage())
	assert.Equal(t, 10*time.Second, c.SegmentDuration())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		desc   string
		change func(c *ServerConfig)
		wantOK bool
	}{
		{"defaults", func(c *ServerConfig) {}, true},
		{"zero segment duration", func(c *ServerConfig) { c.SegmentDurationS = 0 }, false},
		{"no languages", func(c *ServerConfig) { c.Languages = " " }, false},
		{"bad port", func(c *ServerConfig) { c.Port = 70000 }, false},
		{"no output dir", func(c *ServerConfig) { c.OutputDir = "" }, false},
		{"zero cue capacity", func(c *ServerConfig) { c.MaxCuesPerLanguage = 0 }, false},
		{"zero serving window", func(c *ServerConfig) { c.ServingWindowSize = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			c := DefaultConfig
			tc.change(&c)
			if tc.wantOK {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}
