// Package cliconfig loads the settings shared by the example command line
// tools from an optional YAML file and command line flags. Flags given on
// the command line override values from the file.
package cliconfig

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	speechstream "github.com/moxierobots/speechstream-go"
)

// Config represents the complete tool configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Audio       AudioConfig       `yaml:"audio"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig describes how to reach the recognition backend
type ServerConfig struct {
	URL            string            `yaml:"url"`
	UseSSL         bool              `yaml:"use_ssl"`
	SSLCert        string            `yaml:"ssl_cert"`
	Metadata       map[string]string `yaml:"metadata"`
	ConnectTimeout time.Duration     `yaml:"connect_timeout"`
}

type RecognitionConfig struct {
	LanguageCode         string       `yaml:"language_code"`
	Model                string       `yaml:"model"`
	MaxAlternatives      int          `yaml:"max_alternatives"`
	ProfanityFilter      bool         `yaml:"profanity_filter"`
	AutomaticPunctuation bool         `yaml:"automatic_punctuation"`
	WordTimeOffsets      bool         `yaml:"word_time_offsets"`
	VerbatimTranscripts  bool         `yaml:"verbatim_transcripts"`
	InterimResults       bool         `yaml:"interim_results"`
	BoostedPhrases       stringList   `yaml:"boosted_phrases"`
	BoostedPhraseScore   float64      `yaml:"boosted_phrase_score"`
	SpeakerDiarization   bool         `yaml:"speaker_diarization"`
	MinSpeakers          int          `yaml:"min_speakers"`
	MaxSpeakers          int          `yaml:"max_speakers"`
	Endpointing          *Endpointing `yaml:"endpointing"`
	CustomConfiguration  string       `yaml:"custom_configuration"`
}

// Endpointing mirrors speechstream.EndpointingConfig. Histories are in
// milliseconds.
type Endpointing struct {
	StartHistory     int     `yaml:"start_history"`
	StartThreshold   float32 `yaml:"start_threshold"`
	StopHistory      int     `yaml:"stop_history"`
	StopThreshold    float32 `yaml:"stop_threshold"`
	StopHistoryEOU   int     `yaml:"stop_history_eou"`
	StopThresholdEOU float32 `yaml:"stop_threshold_eou"`
}

type AudioConfig struct {
	// ChunkFrames is the number of audio frames per streamed chunk.
	ChunkFrames int  `yaml:"chunk_frames"`
	Realtime    bool `yaml:"realtime"`
	// Strict rejects anything but 16-bit PCM and 8-bit mu-law/A-law WAV.
	Strict bool `yaml:"strict"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when neither a file nor flags
// override a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            speechstream.DefaultServerURL,
			ConnectTimeout: speechstream.DefaultConnectTimeout,
		},
		Recognition: RecognitionConfig{
			LanguageCode:         speechstream.DefaultLanguageCode,
			MaxAlternatives:      1,
			AutomaticPunctuation: true,
			BoostedPhraseScore:   4.0,
		},
		Audio: AudioConfig{
			ChunkFrames: speechstream.DefaultChunkFrames,
			Strict:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Parse registers the shared flags on fs plus -config, parses args and
// returns the merged configuration. Tools register their own flags on fs
// before calling Parse.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	path := fs.String("config", "", "YAML configuration file")
	config := Default()
	config.bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *path == "" {
		return config, config.Validate()
	}

	fromFile, err := Load(*path)
	if err != nil {
		return nil, err
	}

	overrides := flag.NewFlagSet("overrides", flag.ContinueOnError)
	fromFile.bindFlags(overrides)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if overrides.Lookup(f.Name) == nil || setErr != nil {
			return
		}
		setErr = overrides.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return nil, setErr
	}
	return fromFile, fromFile.Validate()
}

func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Server.URL, "server", c.Server.URL, "Recognition backend address (host:port or ws[s]:// URL)")
	fs.BoolVar(&c.Server.UseSSL, "ssl", c.Server.UseSSL, "Use TLS to connect")
	fs.StringVar(&c.Server.SSLCert, "ssl-cert", c.Server.SSLCert, "PEM file with root certificates to trust")
	fs.DurationVar(&c.Server.ConnectTimeout, "connect-timeout", c.Server.ConnectTimeout, "Connect and handshake timeout")

	fs.StringVar(&c.Recognition.LanguageCode, "language", c.Recognition.LanguageCode, "Language code, e.g. en-US")
	fs.StringVar(&c.Recognition.Model, "model", c.Recognition.Model, "Model name")
	fs.IntVar(&c.Recognition.MaxAlternatives, "max-alternatives", c.Recognition.MaxAlternatives, "Maximum alternatives per result")
	fs.BoolVar(&c.Recognition.ProfanityFilter, "profanity-filter", c.Recognition.ProfanityFilter, "Mask profanity")
	fs.BoolVar(&c.Recognition.AutomaticPunctuation, "punctuation", c.Recognition.AutomaticPunctuation, "Automatic punctuation")
	fs.BoolVar(&c.Recognition.WordTimeOffsets, "word-time-offsets", c.Recognition.WordTimeOffsets, "Request word time offsets")
	fs.BoolVar(&c.Recognition.VerbatimTranscripts, "verbatim", c.Recognition.VerbatimTranscripts, "Verbatim transcripts")
	fs.BoolVar(&c.Recognition.InterimResults, "interim", c.Recognition.InterimResults, "Request interim results")
	fs.Var(&c.Recognition.BoostedPhrases, "boost", "Comma-separated phrases to boost")
	fs.Float64Var(&c.Recognition.BoostedPhraseScore, "boost-score", c.Recognition.BoostedPhraseScore, "Boost applied to -boost phrases")
	fs.BoolVar(&c.Recognition.SpeakerDiarization, "diarization", c.Recognition.SpeakerDiarization, "Enable speaker diarization")
	fs.IntVar(&c.Recognition.MinSpeakers, "min-speakers", c.Recognition.MinSpeakers, "Minimum speakers for diarization")
	fs.IntVar(&c.Recognition.MaxSpeakers, "max-speakers", c.Recognition.MaxSpeakers, "Maximum speakers for diarization")
	fs.StringVar(&c.Recognition.CustomConfiguration, "custom-config", c.Recognition.CustomConfiguration, "Custom configuration as key:value,key:value")

	fs.IntVar(&c.Audio.ChunkFrames, "chunk-frames", c.Audio.ChunkFrames, "Audio frames per chunk")
	fs.BoolVar(&c.Audio.Realtime, "realtime", c.Audio.Realtime, "Stream at real-time speed")
	fs.BoolVar(&c.Audio.Strict, "strict", c.Audio.Strict, "Only accept 16-bit PCM or 8-bit mu-law/A-law WAV")

	fs.StringVar(&c.Logging.Level, "log-level", c.Logging.Level, "Log level: debug, info, warn, error")
	fs.StringVar(&c.Logging.Format, "log-format", c.Logging.Format, "Log format: text or json")
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server url cannot be empty")
	}
	if c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.Server.ConnectTimeout)
	}
	if c.Recognition.MaxAlternatives < 0 {
		return fmt.Errorf("max_alternatives cannot be negative, got %d", c.Recognition.MaxAlternatives)
	}
	if c.Recognition.MaxSpeakers > 0 && c.Recognition.MinSpeakers > c.Recognition.MaxSpeakers {
		return fmt.Errorf("min_speakers (%d) must not exceed max_speakers (%d)",
			c.Recognition.MinSpeakers, c.Recognition.MaxSpeakers)
	}
	if c.Audio.ChunkFrames < 1 {
		return fmt.Errorf("chunk_frames must be at least 1, got %d", c.Audio.ChunkFrames)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("log format must be 'json' or 'text', got '%s'", c.Logging.Format)
	}
	return nil
}

// ClientOptions maps the server section onto speechstream client options.
func (c *Config) ClientOptions(logger *slog.Logger) speechstream.ClientOptions {
	return speechstream.ClientOptions{
		ServerURL:      c.Server.URL,
		UseSSL:         c.Server.UseSSL,
		SSLCertPath:    c.Server.SSLCert,
		Metadata:       c.Server.Metadata,
		ConnectTimeout: c.Server.ConnectTimeout,
		Logger:         logger,
	}
}

func (c *Config) RecognitionOptions() speechstream.RecognitionOptions {
	r := c.Recognition
	opts := speechstream.RecognitionOptions{
		LanguageCode:               r.LanguageCode,
		Model:                      r.Model,
		MaxAlternatives:            r.MaxAlternatives,
		ProfanityFilter:            r.ProfanityFilter,
		EnableWordTimeOffsets:      r.WordTimeOffsets,
		EnableAutomaticPunctuation: r.AutomaticPunctuation,
		VerbatimTranscripts:        r.VerbatimTranscripts,
		InterimResults:             r.InterimResults,
		BoostedPhrases:             r.BoostedPhrases,
		BoostedPhraseScore:         float32(r.BoostedPhraseScore),
		SpeakerDiarization:         r.SpeakerDiarization,
		MinSpeakerCount:            r.MinSpeakers,
		MaxSpeakerCount:            r.MaxSpeakers,
		CustomConfiguration:        r.CustomConfiguration,
	}
	if e := r.Endpointing; e != nil {
		opts.Endpointing = &speechstream.EndpointingConfig{
			StartHistory:     e.StartHistory,
			StartThreshold:   e.StartThreshold,
			StopHistory:      e.StopHistory,
			StopThreshold:    e.StopThreshold,
			StopHistoryEOU:   e.StopHistoryEOU,
			StopThresholdEOU: e.StopThresholdEOU,
		}
	}
	return opts
}

// NewLogger builds the slog logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", s)
	}
	return level, nil
}

// stringList is a comma-separated list flag that also decodes from a YAML
// sequence.
type stringList []string

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *stringList) Set(s string) error {
	*l = nil
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l = append(*l, item)
		}
	}
	return nil
}
