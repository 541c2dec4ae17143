package speechstream

import (
	"fmt"
	"log/slog"
	"strings"
)

// SpeechContext is a list of boosted phrases sharing one weight.
type SpeechContext struct {
	Phrases []string `json:"phrases"`
	Boost   float32  `json:"boost"`
}

type SpeakerDiarizationConfig struct {
	EnableSpeakerDiarization bool `json:"enable_speaker_diarization"`
	MinSpeakerCount          int  `json:"min_speaker_count,omitempty"`
	MaxSpeakerCount          int  `json:"max_speaker_count,omitempty"`
}

// EndpointingConfig tunes utterance start/end detection. Histories are in
// milliseconds, thresholds are probabilities in [0, 1]. Zero values keep
// the backend defaults.
type EndpointingConfig struct {
	StartHistory     int     `json:"start_history,omitempty"`
	StartThreshold   float32 `json:"start_threshold,omitempty"`
	StopHistory      int     `json:"stop_history,omitempty"`
	StopThreshold    float32 `json:"stop_threshold,omitempty"`
	StopHistoryEOU   int     `json:"stop_history_eou,omitempty"`
	StopThresholdEOU float32 `json:"stop_threshold_eou,omitempty"`
}

type RecognitionConfig struct {
	Encoding                   AudioEncoding             `json:"encoding,omitempty"`
	SampleRateHertz            int                       `json:"sample_rate_hertz,omitempty"`
	AudioChannelCount          int                       `json:"audio_channel_count,omitempty"`
	LanguageCode               string                    `json:"language_code,omitempty"`
	MaxAlternatives            int                       `json:"max_alternatives,omitempty"`
	ProfanityFilter            bool                      `json:"profanity_filter,omitempty"`
	EnableWordTimeOffsets      bool                      `json:"enable_word_time_offsets,omitempty"`
	EnableWordConfidence       bool                      `json:"enable_word_confidence,omitempty"`
	EnableAutomaticPunctuation bool                      `json:"enable_automatic_punctuation,omitempty"`
	VerbatimTranscripts        bool                      `json:"verbatim_transcripts,omitempty"`
	DiarizationConfig          *SpeakerDiarizationConfig `json:"diarization_config,omitempty"`
	EndpointingConfig          *EndpointingConfig        `json:"endpointing_config,omitempty"`
	SpeechContexts             []SpeechContext           `json:"speech_contexts,omitempty"`
	CustomConfiguration        map[string]string         `json:"custom_configuration,omitempty"`
	Model                      string                    `json:"model,omitempty"`
}

// StreamingRecognitionConfig wraps a RecognitionConfig for streaming.
type StreamingRecognitionConfig struct {
	Config         RecognitionConfig `json:"config"`
	InterimResults bool              `json:"interim_results,omitempty"`
}

// ConfigTarget is anything the config mutators can be applied to. Both
// *RecognitionConfig and *StreamingRecognitionConfig implement it.
type ConfigTarget interface {
	recognitionConfig() *RecognitionConfig
}

func (c *RecognitionConfig) recognitionConfig() *RecognitionConfig { return c }

func (c *StreamingRecognitionConfig) recognitionConfig() *RecognitionConfig { return &c.Config }

// Validate runs client-side sanity checks. The backend remains the
// authority on which values it supports.
func (c *RecognitionConfig) Validate() error {
	if c.SampleRateHertz < 0 {
		return &ConfigError{Message: fmt.Sprintf("Invalid sample rate %d", c.SampleRateHertz)}
	}
	if c.AudioChannelCount < 0 {
		return &ConfigError{Message: fmt.Sprintf("Invalid channel count %d", c.AudioChannelCount)}
	}
	if c.MaxAlternatives < 0 {
		return &ConfigError{Message: fmt.Sprintf("Invalid max alternatives %d", c.MaxAlternatives)}
	}
	if d := c.DiarizationConfig; d != nil && d.MaxSpeakerCount > 0 && d.MinSpeakerCount > d.MaxSpeakerCount {
		return &ConfigError{Message: fmt.Sprintf("Invalid speaker bounds: min %d > max %d", d.MinSpeakerCount, d.MaxSpeakerCount)}
	}
	return nil
}

// AddBoostedPhrases appends one speech context holding phrases with the
// given boost. It never merges into an existing context.
func AddBoostedPhrases(t ConfigTarget, phrases []string, boost float32) {
	if len(phrases) == 0 {
		return
	}
	c := t.recognitionConfig()
	c.SpeechContexts = append(c.SpeechContexts, SpeechContext{
		Phrases: append([]string(nil), phrases...),
		Boost:   boost,
	})
}

// SetSpeakerDiarization toggles diarization. Speaker bounds are attached
// only when enabling.
func SetSpeakerDiarization(t ConfigTarget, enable bool, minSpeakers, maxSpeakers int) {
	c := t.recognitionConfig()
	d := &SpeakerDiarizationConfig{EnableSpeakerDiarization: enable}
	if enable {
		d.MinSpeakerCount = minSpeakers
		d.MaxSpeakerCount = maxSpeakers
	}
	c.DiarizationConfig = d
}

// SetEndpointing replaces the endpointing config wholesale.
func SetEndpointing(t ConfigTarget, e *EndpointingConfig) {
	c := t.recognitionConfig()
	if e == nil {
		c.EndpointingConfig = nil
		return
	}
	cp := *e
	c.EndpointingConfig = &cp
}

// AddAudioFileSpecs sets encoding, sample rate and channel count from the
// file at path. The config is left unchanged if the file cannot be parsed.
func AddAudioFileSpecs(t ConfigTarget, path string) {
	params, err := ReadWavFileParams(path)
	if err != nil {
		return
	}
	c := t.recognitionConfig()
	c.Encoding = params.Encoding
	c.SampleRateHertz = params.SampleRate
	c.AudioChannelCount = params.Channels
}

// ApplyCustomConfiguration merges a "key:value,key:value" blob into the
// custom configuration map. A malformed blob is logged and reported as a
// *ParseError, and the map is left untouched.
func ApplyCustomConfiguration(t ConfigTarget, blob string, logger *slog.Logger) error {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs, err := parseCustomConfiguration(blob)
	if err != nil {
		logger.Warn("ignoring custom configuration", "error", err)
		return err
	}

	c := t.recognitionConfig()
	if c.CustomConfiguration == nil {
		c.CustomConfiguration = make(map[string]string, len(pairs))
	}
	for _, kv := range pairs {
		c.CustomConfiguration[kv[0]] = kv[1]
	}
	return nil
}

func parseCustomConfiguration(blob string) ([][2]string, error) {
	var pairs [][2]string
	for _, item := range strings.Split(blob, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &ParseError{Field: "custom_configuration", Input: blob,
				Message: fmt.Sprintf("entry %q is not a key:value pair", item)}
		}
		pairs = append(pairs, [2]string{key, strings.TrimSpace(value)})
	}
	return pairs, nil
}

// RecognitionOptions is the caller-facing option set mapped onto a
// StreamingRecognitionConfig.
type RecognitionOptions struct {
	LanguageCode               string
	Model                      string
	MaxAlternatives            int
	ProfanityFilter            bool
	EnableWordTimeOffsets      bool
	EnableWordConfidence       bool
	EnableAutomaticPunctuation bool
	VerbatimTranscripts        bool
	InterimResults             bool

	BoostedPhrases     []string
	BoostedPhraseScore float32

	SpeakerDiarization bool
	MinSpeakerCount    int
	MaxSpeakerCount    int

	Endpointing *EndpointingConfig

	// CustomConfiguration is a "key:value,key:value" passthrough blob.
	CustomConfiguration string
}

// NewStreamingConfig builds a streaming config from opts. Audio parameters
// are left for AddAudioFileSpecs or the caller.
func NewStreamingConfig(opts RecognitionOptions, logger *slog.Logger) *StreamingRecognitionConfig {
	if opts.LanguageCode == "" {
		opts.LanguageCode = DefaultLanguageCode
	}
	if opts.MaxAlternatives == 0 {
		opts.MaxAlternatives = 1
	}
	cfg := &StreamingRecognitionConfig{
		InterimResults: opts.InterimResults,
		Config: RecognitionConfig{
			LanguageCode:               opts.LanguageCode,
			Model:                      opts.Model,
			MaxAlternatives:            opts.MaxAlternatives,
			ProfanityFilter:            opts.ProfanityFilter,
			EnableWordTimeOffsets:      opts.EnableWordTimeOffsets,
			EnableWordConfidence:       opts.EnableWordConfidence,
			EnableAutomaticPunctuation: opts.EnableAutomaticPunctuation,
			VerbatimTranscripts:        opts.VerbatimTranscripts,
		},
	}
	AddBoostedPhrases(cfg, opts.BoostedPhrases, opts.BoostedPhraseScore)
	if opts.SpeakerDiarization {
		SetSpeakerDiarization(cfg, true, opts.MinSpeakerCount, opts.MaxSpeakerCount)
	}
	if opts.Endpointing != nil {
		SetEndpointing(cfg, opts.Endpointing)
	}
	ApplyCustomConfiguration(cfg, opts.CustomConfiguration, logger)
	return cfg
}
