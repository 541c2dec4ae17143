package speechstream

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moxierobots/speechstream-go/internal/mockbackend"
)

// --- State helpers ---

func TestStateIsActive(t *testing.T) {
	for _, s := range []State{StateConfigSent, StateStreaming, StateDraining} {
		assert.True(t, s.IsActive(), "%s should be active", s)
	}
	for _, s := range []State{StateIdle, StateClosed, StateErrored} {
		assert.False(t, s.IsActive(), "%s should not be active", s)
	}
}

func TestStateIsTerminal(t *testing.T) {
	for _, s := range []State{StateClosed, StateErrored} {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	for _, s := range []State{StateIdle, StateConfigSent, StateStreaming, StateDraining} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestStateCanWrite(t *testing.T) {
	assert.True(t, StateConfigSent.CanWrite())
	assert.True(t, StateStreaming.CanWrite())
	assert.False(t, StateDraining.CanWrite())
	assert.False(t, StateIdle.CanWrite())
	assert.Equal(t, "Draining", StateDraining.String())
}

func newIdleSession(t *testing.T) *Session {
	t.Helper()
	client := NewClient(ClientOptions{Logger: discardLogger()})
	return client.NewSession(&StreamingRecognitionConfig{}, NewBufferSource(nil))
}

func TestSetStateIgnoresTerminal(t *testing.T) {
	s := newIdleSession(t)
	s.setState(StateErrored)
	s.setState(StateStreaming)
	s.setState(StateClosed)
	assert.Equal(t, StateErrored, s.State())
}

func TestSetStateMovesForwardOnly(t *testing.T) {
	var transitions []string
	client := NewClient(ClientOptions{
		Logger: discardLogger(),
		OnStateChange: func(_ string, oldState, newState State) {
			transitions = append(transitions, fmt.Sprintf("%s->%s", oldState, newState))
		},
	})
	s := client.NewSession(&StreamingRecognitionConfig{}, NewBufferSource(nil))

	s.setState(StateStreaming)
	s.setState(StateConfigSent)
	s.setState(StateStreaming)
	s.setState(StateDraining)

	assert.Equal(t, StateDraining, s.State())
	assert.Equal(t, []string{"Idle->Streaming", "Streaming->Draining"}, transitions)
}

// --- Errors ---

func TestErrorClassification(t *testing.T) {
	code := 400
	tests := []struct {
		name        string
		err         error
		fatal       bool
		recoverable bool
		kind        string
	}{
		{"format", newFormatError("parse", "bad magic"), true, false, "format"},
		{"config", &ConfigError{Message: "Invalid sample rate 1", Code: &code}, true, false, "config"},
		{"transport", newTransportError("connect", "refused", errors.New("dial tcp")), true, false, "transport"},
		{"parse", &ParseError{Field: "custom_configuration", Input: "x", Message: "bad"}, false, true, "other"},
		{"wrapped config", fmt.Errorf("start: %w", &ConfigError{Message: "no"}), true, false, "config"},
		{"state", ErrSessionClosed, false, false, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.recoverable, IsRecoverable(tt.err))
			assert.Equal(t, tt.kind, errorKind(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	code := 422
	assert.Equal(t, "speechstream: config error (code=422): Invalid sample rate 7", (&ConfigError{Message: "Invalid sample rate 7", Code: &code}).Error())

	cause := errors.New("broken pipe")
	err := newTransportError("send", "failed to send audio", cause)
	assert.Equal(t, "speechstream: transport error: send: failed to send audio: broken pipe", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Contains(t, newFormatError("parse", "truncated").Error(), "format error: parse: truncated")
}

func TestMapServerError(t *testing.T) {
	var cfgErr *ConfigError
	require.ErrorAs(t, mapServerError("Invalid sample rate 44100", 400), &cfgErr)
	assert.Equal(t, "Invalid sample rate 44100", cfgErr.Message)
	assert.Equal(t, 400, *cfgErr.Code)

	assert.ErrorAs(t, mapServerError("bad field", 422), &cfgErr)

	var transportErr *TransportError
	require.ErrorAs(t, mapServerError("boom", 500), &transportErr)
	assert.Equal(t, "recognize", transportErr.Op)
	assert.Equal(t, 500, *transportErr.Code)
}

func TestResponseErr(t *testing.T) {
	code := 400
	resp := &Response{ErrorCode: &code}
	require.True(t, resp.isError())
	assert.Contains(t, resp.err().Error(), "backend error 400")

	resp = &Response{ErrorMessage: "overloaded"}
	var transportErr *TransportError
	assert.ErrorAs(t, resp.err(), &transportErr)

	assert.False(t, (&Response{Started: true}).isError())
}

// --- Client ---

func TestClientOptionsDefaults(t *testing.T) {
	opts := ClientOptions{}
	opts.applyDefaults()

	assert.Equal(t, DefaultServerURL, opts.ServerURL)
	assert.Equal(t, DefaultConnectTimeout, opts.ConnectTimeout)
	assert.Equal(t, DefaultWriteTimeout, opts.WriteTimeout)
	assert.NotNil(t, opts.Logger)
	assert.Nil(t, opts.Metrics)
}

func TestClientEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		useSSL bool
		want   string
	}{
		{"bare host", "localhost:50051", false, "ws://localhost:50051/v1/speech/streaming-recognize"},
		{"bare host with ssl", "asr.example.com:443", true, "wss://asr.example.com:443/v1/speech/streaming-recognize"},
		{"full url kept", "ws://10.0.0.2:8080/stream", false, "ws://10.0.0.2:8080/stream"},
		{"ssl upgrades scheme", "ws://10.0.0.2:8080/stream", true, "wss://10.0.0.2:8080/stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(ClientOptions{ServerURL: tt.url, UseSSL: tt.useSSL})
			got, err := c.endpoint()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientTLSConfig(t *testing.T) {
	c := NewClient(ClientOptions{})
	cfg, err := c.tlsConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)

	c = NewClient(ClientOptions{SSLCertPath: writeTempFile(t, "ca.pem", []byte("not a certificate"))})
	_, err = c.tlsConfig()
	assert.Error(t, err)

	c = NewClient(ClientOptions{SSLCertPath: "missing.pem"})
	_, err = c.tlsConfig()
	assert.Error(t, err)
}

func TestNewSessionAssignsIDs(t *testing.T) {
	client := NewClient(ClientOptions{Logger: discardLogger()})
	a := client.NewSession(&StreamingRecognitionConfig{}, NewBufferSource(nil))
	b := client.NewSession(&StreamingRecognitionConfig{}, NewBufferSource(nil))

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, StateIdle, a.State())
	assert.NoError(t, a.Err())
}

// startBackend serves a mock backend and returns its websocket URL.
func startBackend(t *testing.T, opts mockbackend.Options) (*mockbackend.Backend, string) {
	t.Helper()
	opts.Logger = discardLogger()
	backend := mockbackend.New(opts)
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	return backend, "ws" + strings.TrimPrefix(server.URL, "http") + defaultPath
}

func TestClientSendsMetadata(t *testing.T) {
	backend, url := startBackend(t, mockbackend.Options{})
	client := NewClient(ClientOptions{
		ServerURL: url,
		Logger:    discardLogger(),
		Metadata:  map[string]string{"Authorization": "Bearer secret", "X-Tenant": "acme"},
	})

	_, err := client.Recognize(testContext(t), pcmConfig(16000), NewBufferSource(make([]byte, 320)))
	require.NoError(t, err)

	rec, ok := backend.Last()
	require.True(t, ok)
	assert.Equal(t, "Bearer secret", rec.Header.Get("Authorization"))
	assert.Equal(t, "acme", rec.Header.Get("X-Tenant"))
}

func TestClientConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	client := NewClient(ClientOptions{ServerURL: url, ConnectTimeout: 2 * time.Second, Logger: discardLogger()})
	s := client.NewSession(pcmConfig(16000), NewBufferSource(nil))

	err := s.Start(testContext(t))
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "connect", transportErr.Op)
	assert.Equal(t, StateErrored, s.State())
	assert.Equal(t, err, s.Wait())
}
