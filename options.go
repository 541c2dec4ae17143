package speechstream

import (
	"log/slog"
	"time"
)

const (
	DefaultServerURL      = "ws://localhost:50051/v1/speech/streaming-recognize"
	DefaultConnectTimeout = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultLanguageCode   = "en-US"
	DefaultChunkFrames    = 1600
)

type ClientOptions struct {
	// ServerURL is the websocket endpoint of the recognition backend. A
	// bare host:port is accepted; UseSSL then selects wss over ws.
	ServerURL string
	UseSSL    bool
	// SSLCertPath points to a PEM bundle of root certificates to trust
	// instead of the system pool.
	SSLCertPath string
	// Metadata is sent as request headers on connect.
	Metadata map[string]string

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	Logger  *slog.Logger
	Metrics *Metrics

	OnStateChange func(sessionID string, oldState, newState State)
}

func (o *ClientOptions) applyDefaults() {
	if o.ServerURL == "" {
		o.ServerURL = DefaultServerURL
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
