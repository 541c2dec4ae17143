package cliconfig

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  url: asr.internal:50051
  use_ssl: true
  metadata:
    authorization: Bearer token
  connect_timeout: 5s
recognition:
  language_code: de-DE
  interim_results: true
  boosted_phrases: [wetter, berlin]
  boosted_phrase_score: 2.5
  speaker_diarization: true
  min_speakers: 1
  max_speakers: 3
  endpointing:
    stop_history: 800
    stop_threshold_eou: 0.9
audio:
  chunk_frames: 800
logging:
  level: debug
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "asr.internal:50051", cfg.Server.URL)
	assert.True(t, cfg.Server.UseSSL)
	assert.Equal(t, 5*time.Second, cfg.Server.ConnectTimeout)
	assert.Equal(t, "Bearer token", cfg.Server.Metadata["authorization"])
	assert.Equal(t, "de-DE", cfg.Recognition.LanguageCode)
	assert.Equal(t, []string{"wetter", "berlin"}, []string(cfg.Recognition.BoostedPhrases))
	assert.Equal(t, 800, cfg.Recognition.Endpointing.StopHistory)
	assert.Equal(t, 800, cfg.Audio.ChunkFrames)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Defaults survive for keys the file does not mention.
	assert.Equal(t, 1, cfg.Recognition.MaxAlternatives)
	assert.True(t, cfg.Audio.Strict)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"bad yaml", "server: [unterminated", "failed to parse"},
		{"bad chunk frames", "audio:\n  chunk_frames: 0\n", "chunk_frames"},
		{"bad speakers", "recognition:\n  min_speakers: 4\n  max_speakers: 2\n", "min_speakers"},
		{"bad level", "logging:\n  level: loud\n", "level must be"},
		{"bad format", "logging:\n  format: xml\n", "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := Load("missing.yaml")
	assert.Error(t, err)
}

func TestParseFlagsOnly(t *testing.T) {
	fs := newFlagSet()
	file := fs.String("file", "", "")

	cfg, err := Parse(fs, []string{"-file", "a.wav", "-server", "localhost:9000", "-boost", "paris, london", "-interim"})
	require.NoError(t, err)
	assert.Equal(t, "a.wav", *file)
	assert.Equal(t, "localhost:9000", cfg.Server.URL)
	assert.Equal(t, []string{"paris", "london"}, []string(cfg.Recognition.BoostedPhrases))
	assert.True(t, cfg.Recognition.InterimResults)
	assert.Equal(t, 1600, cfg.Audio.ChunkFrames)
}

func TestParseFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	cfg, err := Parse(newFlagSet(), []string{"-config", path, "-language", "fr-FR", "-strict=false", "-connect-timeout", "2s"})
	require.NoError(t, err)

	assert.Equal(t, "fr-FR", cfg.Recognition.LanguageCode)
	assert.False(t, cfg.Audio.Strict)
	assert.Equal(t, 2*time.Second, cfg.Server.ConnectTimeout)
	assert.Equal(t, "asr.internal:50051", cfg.Server.URL)
	assert.Equal(t, []string{"wetter", "berlin"}, []string(cfg.Recognition.BoostedPhrases))
}

func TestRecognitionOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	opts := cfg.RecognitionOptions()
	assert.Equal(t, "de-DE", opts.LanguageCode)
	assert.Equal(t, []string{"wetter", "berlin"}, opts.BoostedPhrases)
	assert.Equal(t, float32(2.5), opts.BoostedPhraseScore)
	assert.True(t, opts.SpeakerDiarization)
	assert.Equal(t, 3, opts.MaxSpeakerCount)
	require.NotNil(t, opts.Endpointing)
	assert.Equal(t, float32(0.9), opts.Endpointing.StopThresholdEOU)

	client := cfg.ClientOptions(nil)
	assert.Equal(t, "asr.internal:50051", client.ServerURL)
	assert.True(t, client.UseSSL)
	assert.Equal(t, 5*time.Second, client.ConnectTimeout)
}

func TestNewLogger(t *testing.T) {
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(io.Discard)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}
