package speechstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// AudioEncoding identifies how audio bytes are encoded on the wire.
type AudioEncoding string

const (
	EncodingUnspecified AudioEncoding = "ENCODING_UNSPECIFIED"
	EncodingLinearPCM   AudioEncoding = "LINEAR_PCM"
	EncodingFLAC        AudioEncoding = "FLAC"
	EncodingMulaw       AudioEncoding = "MULAW"
	EncodingAlaw        AudioEncoding = "ALAW"
)

// AudioFrame is one chunk of audio handed from a source to the session.
type AudioFrame struct {
	Audio []byte
	// Offset is the audio time produced before this frame, zero when the
	// source cannot tell.
	Offset time.Duration
}

// Request is an outbound session frame. It is either a *ConfigRequest or an
// *AudioRequest; the config request is always written first.
type Request interface {
	encode() (messageType int, data []byte, err error)
}

// ConfigRequest is the initial configuration message.
type ConfigRequest struct {
	Config    *StreamingRecognitionConfig `json:"config"`
	RequestID string                      `json:"request_id,omitempty"`
}

func (r *ConfigRequest) encode() (int, []byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, nil, err
	}
	return websocket.TextMessage, data, nil
}

// AudioRequest carries audio content. It is sent as a binary message.
type AudioRequest struct {
	AudioContent []byte
}

func (r *AudioRequest) encode() (int, []byte, error) {
	return websocket.BinaryMessage, r.AudioContent, nil
}

// endOfStream half-closes the write direction.
type endOfStream struct{}

func (endOfStream) encode() (int, []byte, error) {
	return websocket.TextMessage, []byte{}, nil
}

// SpeechEventType tags voice activity events embedded in a response.
type SpeechEventType string

const (
	SpeechEventUnspecified  SpeechEventType = ""
	SpeechEventUtteranceEnd SpeechEventType = "END_OF_SINGLE_UTTERANCE"
	SpeechEventSpeechBegin  SpeechEventType = "SPEECH_ACTIVITY_BEGIN"
	SpeechEventSpeechEnd    SpeechEventType = "SPEECH_ACTIVITY_END"
)

type WordInfo struct {
	Word       string  `json:"word"`
	StartMs    int     `json:"start_ms"`
	EndMs      int     `json:"end_ms"`
	Confidence float32 `json:"confidence,omitempty"`
	SpeakerTag int     `json:"speaker_tag,omitempty"`
}

type Alternative struct {
	Transcript string     `json:"transcript"`
	Confidence float32    `json:"confidence"`
	Words      []WordInfo `json:"words,omitempty"`
}

type RecognitionResult struct {
	Alternatives   []Alternative `json:"alternatives"`
	ChannelTag     int           `json:"channel_tag"`
	IsFinal        bool          `json:"is_final"`
	Stability      float32       `json:"stability,omitempty"`
	AudioProcessed float32       `json:"audio_processed,omitempty"`
}

// Transcript returns the top alternative's text, or "" when there is none.
func (r *RecognitionResult) Transcript() string {
	if r == nil || len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Transcript
}

// Response is an inbound frame from the backend.
type Response struct {
	Results         []*RecognitionResult `json:"results"`
	SpeechEventType SpeechEventType      `json:"speech_event_type,omitempty"`
	TimeOffsetMs    *int                 `json:"time_offset_ms,omitempty"`
	Started         bool                 `json:"started,omitempty"`
	Finished        bool                 `json:"finished,omitempty"`
	ErrorCode       *int                 `json:"error_code,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
}

// IsFinal reports whether any result in the response is final.
func (r *Response) IsFinal() bool {
	for _, res := range r.Results {
		if res != nil && res.IsFinal {
			return true
		}
	}
	return false
}

// HasSpeechEvent reports whether the response carries a speech event.
func (r *Response) HasSpeechEvent() bool {
	return r.SpeechEventType != SpeechEventUnspecified
}

// TimeOffset returns the backend's time offset hint, if any.
func (r *Response) TimeOffset() (time.Duration, bool) {
	if r.TimeOffsetMs == nil {
		return 0, false
	}
	return time.Duration(*r.TimeOffsetMs) * time.Millisecond, true
}

func (r *Response) isError() bool {
	return r.ErrorCode != nil || r.ErrorMessage != ""
}

func (r *Response) err() error {
	code := 0
	if r.ErrorCode != nil {
		code = *r.ErrorCode
	}
	msg := r.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("backend error %d", code)
	}
	return mapServerError(msg, code)
}
