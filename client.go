package speechstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const defaultPath = "/v1/speech/streaming-recognize"

// Client opens streaming recognition sessions against one backend.
type Client struct {
	options  ClientOptions
	tlsCache tls.ClientSessionCache
}

// NewClient creates a new client.
func NewClient(options ClientOptions) *Client {
	options.applyDefaults()
	return &Client{
		options:  options,
		tlsCache: tls.NewLRUClientSessionCache(32),
	}
}

// NewSession prepares a session that streams src with cfg. Nothing is sent
// until Start. The session takes ownership of src and closes it.
func (c *Client) NewSession(cfg *StreamingRecognitionConfig, src AudioSource) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		client:  c,
		config:  cfg,
		source:  src,
		logger:  c.options.Logger.With("session_id", id),
		metrics: c.options.Metrics,
		state:   StateIdle,
		results: make(chan *Response),
		done:    make(chan struct{}),
	}
}

// Recognize streams src to completion and returns the aggregated
// transcript.
func (c *Client) Recognize(ctx context.Context, cfg *StreamingRecognitionConfig, src AudioSource) (*Transcript, error) {
	s := c.NewSession(cfg, src)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	t := NewTranscript()
	err := Collect(s, t)
	return t, err
}

func (c *Client) endpoint() (string, error) {
	raw := c.options.ServerURL
	if !strings.Contains(raw, "://") {
		scheme := "ws"
		if c.options.UseSSL {
			scheme = "wss"
		}
		raw = scheme + "://" + raw + defaultPath
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if c.options.UseSSL && u.Scheme == "ws" {
		u.Scheme = "wss"
	}
	return u.String(), nil
}

func (c *Client) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{ClientSessionCache: c.tlsCache}
	if c.options.SSLCertPath == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(c.options.SSLCertPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", c.options.SSLCertPath)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, newTransportError("connect", "invalid server address", err)
	}
	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return nil, newTransportError("connect", "failed to load SSL certificate", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, c.options.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.options.ConnectTimeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			return conn, nil
		},
		TLSClientConfig: tlsCfg,
	}

	header := http.Header{}
	for k, v := range c.options.Metadata {
		header.Set(k, v)
	}

	conn, _, err := dialer.DialContext(connCtx, endpoint, header)
	if err != nil {
		return nil, newTransportError("connect", "failed to connect to "+endpoint, err)
	}
	return conn, nil
}
