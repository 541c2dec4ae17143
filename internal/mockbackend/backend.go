// Package mockbackend is a local streaming recognition backend speaking the
// speechstream websocket protocol. It echoes a fixed transcript back as
// partial and final results and records everything it receives. It is used
// by tests and by the mockserver example.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const DefaultTranscript = "hello world"

var DefaultSampleRates = []int{8000, 16000}

type Options struct {
	// SampleRates are the accepted sample rates for LINEAR_PCM, MULAW and
	// ALAW audio. A config with any other rate is rejected with code 400.
	SampleRates []int
	// Transcript is echoed back word by word.
	Transcript string
	// DropAfterFrames closes the connection without a close frame once that
	// many audio frames were received. Zero disables it.
	DropAfterFrames int
	// FailAfterFrames sends an internal error (code 500) once that many
	// audio frames were received. Zero disables it.
	FailAfterFrames int
	// SkipAck never acknowledges the configuration. The connection stays
	// open until the client goes away.
	SkipAck bool
	// AckSpeechEvent is carried in the same message as the acknowledgement.
	AckSpeechEvent string
	// HoldAfterEndOfStream records the end of the stream and then keeps the
	// connection open without sending the final result.
	HoldAfterEndOfStream bool
	Logger               *slog.Logger
}

// Recording is what the backend received on one connection.
type Recording struct {
	Header      http.Header
	Config      Config
	RawConfig   []byte
	Frames      [][]byte
	EndOfStream bool
}

// Bytes returns the total number of audio bytes received.
func (r Recording) Bytes() int {
	n := 0
	for _, f := range r.Frames {
		n += len(f)
	}
	return n
}

// Config is the subset of the config frame the backend looks at.
type Config struct {
	Config struct {
		Encoding          string `json:"encoding"`
		SampleRateHertz   int    `json:"sample_rate_hertz"`
		AudioChannelCount int    `json:"audio_channel_count"`
		LanguageCode      string `json:"language_code"`
	} `json:"config"`
	InterimResults bool `json:"interim_results"`
}

type configFrame struct {
	Config    Config `json:"config"`
	RequestID string `json:"request_id"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float32 `json:"confidence"`
}

type result struct {
	Alternatives []alternative `json:"alternatives"`
	ChannelTag   int           `json:"channel_tag"`
	IsFinal      bool          `json:"is_final"`
	Stability    float32       `json:"stability,omitempty"`
}

type response struct {
	Results         []result `json:"results,omitempty"`
	SpeechEventType string   `json:"speech_event_type,omitempty"`
	Started         bool     `json:"started,omitempty"`
	Finished        bool     `json:"finished,omitempty"`
	ErrorCode       int      `json:"error_code,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// Backend is an http.Handler upgrading every request to a recognition
// stream.
type Backend struct {
	opts     Options
	upgrader websocket.Upgrader

	mu         sync.Mutex
	recordings []*Recording
}

func New(opts Options) *Backend {
	if len(opts.SampleRates) == 0 {
		opts.SampleRates = DefaultSampleRates
	}
	if opts.Transcript == "" {
		opts.Transcript = DefaultTranscript
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Backend{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Recordings returns a snapshot of every connection served so far.
func (b *Backend) Recordings() []Recording {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Recording, 0, len(b.recordings))
	for _, r := range b.recordings {
		cp := *r
		cp.Frames = slices.Clone(r.Frames)
		out = append(out, cp)
	}
	return out
}

// Last returns the most recent recording.
func (b *Backend) Last() (Recording, bool) {
	recs := b.Recordings()
	if len(recs) == 0 {
		return Recording{}, false
	}
	return recs[len(recs)-1], true
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.opts.Logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	rec := &Recording{Header: r.Header.Clone()}
	b.mu.Lock()
	b.recordings = append(b.recordings, rec)
	b.mu.Unlock()

	if err := b.serve(conn, rec); err != nil {
		b.opts.Logger.Debug("stream ended", "error", err)
	}
}

func (b *Backend) serve(conn *websocket.Conn, rec *Recording) error {
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if msgType != websocket.TextMessage {
		return b.reject(conn, 400, "first message must be the configuration")
	}
	var cfg configFrame
	if err := json.Unmarshal(msg, &cfg); err != nil {
		return b.reject(conn, 400, "malformed configuration: "+err.Error())
	}
	b.mu.Lock()
	rec.Config = cfg.Config
	rec.RawConfig = msg
	b.mu.Unlock()

	if rate := cfg.Config.Config.SampleRateHertz; rate != 0 && cfg.Config.Config.Encoding != "FLAC" &&
		!slices.Contains(b.opts.SampleRates, rate) {
		return b.reject(conn, 400, fmt.Sprintf("Invalid sample rate %d, supported rates are %v", rate, b.opts.SampleRates))
	}

	b.opts.Logger.Info("stream started", "request_id", cfg.RequestID,
		"encoding", cfg.Config.Config.Encoding, "sample_rate", cfg.Config.Config.SampleRateHertz)
	if b.opts.SkipAck {
		return drain(conn)
	}
	if err := conn.WriteJSON(response{Started: true, SpeechEventType: b.opts.AckSpeechEvent}); err != nil {
		return err
	}

	words := strings.Fields(b.opts.Transcript)
	frames := 0
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if msgType == websocket.TextMessage {
			if len(msg) != 0 {
				continue
			}
			b.mu.Lock()
			rec.EndOfStream = true
			b.mu.Unlock()
			if b.opts.HoldAfterEndOfStream {
				return drain(conn)
			}
			return b.finish(conn, words)
		}

		frames++
		b.mu.Lock()
		rec.Frames = append(rec.Frames, slices.Clone(msg))
		b.mu.Unlock()

		if b.opts.DropAfterFrames > 0 && frames >= b.opts.DropAfterFrames {
			return conn.NetConn().Close()
		}
		if b.opts.FailAfterFrames > 0 && frames >= b.opts.FailAfterFrames {
			return conn.WriteJSON(response{ErrorCode: 500, ErrorMessage: "recognizer crashed"})
		}

		if frames == 1 {
			if err := conn.WriteJSON(response{SpeechEventType: "SPEECH_ACTIVITY_BEGIN"}); err != nil {
				return err
			}
		}
		if !cfg.Config.InterimResults {
			continue
		}
		partial := strings.Join(words[:min(frames, len(words))], " ")
		if err := conn.WriteJSON(response{Results: []result{{
			Alternatives: []alternative{{Transcript: partial, Confidence: 0.5}},
			Stability:    0.5,
		}}}); err != nil {
			return err
		}
	}
}

func (b *Backend) finish(conn *websocket.Conn, words []string) error {
	final := response{Results: []result{{
		Alternatives: []alternative{{Transcript: strings.Join(words, " "), Confidence: 0.9}},
		IsFinal:      true,
	}}}
	for _, resp := range []response{final, {SpeechEventType: "END_OF_SINGLE_UTTERANCE"}, {Finished: true}} {
		if err := conn.WriteJSON(resp); err != nil {
			return err
		}
	}
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// drain reads and discards messages until the connection fails.
func drain(conn *websocket.Conn) error {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (b *Backend) reject(conn *websocket.Conn, code int, message string) error {
	b.opts.Logger.Warn("rejecting configuration", "code", code, "message", message)
	if err := conn.WriteJSON(response{ErrorCode: code, ErrorMessage: message}); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
