package speechstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// errEndOfStream ends the read activity when the backend closes the stream.
var errEndOfStream = errors.New("end of stream")

// Session is one streaming recognition request. It writes the config frame,
// then the frames of its AudioSource, while results are read concurrently
// and handed out on Results. A session is not reusable.
type Session struct {
	id      string
	client  *Client
	config  *StreamingRecognitionConfig
	source  AudioSource
	logger  *slog.Logger
	metrics *Metrics

	mu         sync.RWMutex
	state      State
	err        error
	started    bool
	conn       *websocket.Conn
	connClosed bool
	cancel     context.CancelFunc

	writeMu sync.Mutex
	pending *Response

	results    chan *Response
	done       chan struct{}
	finishOnce sync.Once
	cancelOnce sync.Once
	canceled   atomic.Bool
}

// ID returns the session identifier, also sent as the request ID.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Results returns the inbound responses in arrival order. The channel is
// closed when the session ends. The caller must drain it, the read side
// does not buffer beyond one message.
func (s *Session) Results() <-chan *Response {
	return s.results
}

// Done is closed once the session reached a terminal state and released
// its resources.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its terminal error.
func (s *Session) Wait() error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started && !s.canceled.Load() {
		return ErrNotStarted
	}
	<-s.done
	return s.Err()
}

var stateRank = map[State]int{
	StateIdle:       0,
	StateConfigSent: 1,
	StateStreaming:  2,
	StateDraining:   3,
}

func (s *Session) setState(newState State) {
	s.mu.Lock()
	oldState := s.state
	if oldState == newState || oldState.IsTerminal() {
		s.mu.Unlock()
		return
	}
	if !newState.IsTerminal() && stateRank[newState] < stateRank[oldState] {
		s.mu.Unlock()
		return
	}
	s.state = newState
	s.mu.Unlock()

	s.logger.Debug("session state changed", "from", oldState, "to", newState)
	if cb := s.client.options.OnStateChange; cb != nil {
		cb(s.id, oldState, newState)
	}
}

// Start connects, sends the config frame and waits for the backend to
// accept it. A rejected config is returned as *ConfigError before any audio
// is sent. On success the write and read activities run until the source is
// drained and the backend ends the stream, or until Cancel.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrSessionAlreadyStarted
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	if s.config == nil {
		return s.abort(&ConfigError{Message: "missing recognition config"})
	}
	if err := s.config.Config.Validate(); err != nil {
		return s.abort(err)
	}

	conn, err := s.client.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.abort(ctx.Err())
		}
		return s.abort(err)
	}

	s.mu.Lock()
	if s.connClosed {
		s.mu.Unlock()
		conn.Close()
		return s.abort(context.Canceled)
	}
	s.conn = conn
	s.mu.Unlock()

	stopWatch := context.AfterFunc(ctx, s.closeConn)

	if err := s.write(&ConfigRequest{Config: s.config, RequestID: s.id}); err != nil {
		stopWatch()
		return s.abort(s.transportFailure(ctx, "send", "failed to send configuration", err))
	}
	s.setState(StateConfigSent)
	s.logger.Info("config sent", "encoding", s.config.Config.Encoding,
		"sample_rate", s.config.Config.SampleRateHertz, "language", s.config.Config.LanguageCode)

	if err := s.awaitStarted(ctx, conn); err != nil {
		stopWatch()
		return s.abort(err)
	}
	stopWatch()
	s.metrics.sessionStarted()

	g, gctx := errgroup.WithContext(ctx)
	context.AfterFunc(gctx, s.closeConn)
	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error { return s.readLoop(gctx, conn) })
	go s.supervise(g)
	return nil
}

// awaitStarted reads the first response, which acknowledges or rejects the
// config.
func (s *Session) awaitStarted(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(s.client.options.ConnectTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, message, err := conn.ReadMessage()
	if err != nil {
		return s.transportFailure(ctx, "start", "no acknowledgement for configuration", err)
	}
	var resp Response
	if err := json.Unmarshal(message, &resp); err != nil {
		return newTransportError("start", "failed to parse response", err)
	}
	switch {
	case resp.isError():
		return resp.err()
	case resp.Finished:
		return newTransportError("start", "stream finished before it started", nil)
	case !resp.Started || len(resp.Results) > 0 || resp.HasSpeechEvent():
		// Either the acknowledgement was skipped or it carries a payload;
		// the reader delivers it first.
		s.pending = &resp
	}
	return nil
}

func (s *Session) writeLoop(ctx context.Context) error {
	defer s.source.Close()

	frames, bytes := 0, 0
	for {
		frame, err := s.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := s.write(&AudioRequest{AudioContent: frame.Audio}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return newTransportError("send", "failed to send audio", err)
		}
		frames++
		bytes += len(frame.Audio)
		s.metrics.frameSent(len(frame.Audio))
		s.setState(StateStreaming)
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := s.write(endOfStream{}); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return newTransportError("send", "failed to close the write direction", err)
	}
	s.setState(StateDraining)
	s.logger.Info("audio drained", "frames", frames, "bytes", bytes)
	return nil
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	if s.pending != nil {
		resp := s.pending
		s.pending = nil
		if done, err := s.dispatch(ctx, resp); done {
			return err
		}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errEndOfStream
			}
			return newTransportError("receive", "connection lost", err)
		}

		var resp Response
		if err := json.Unmarshal(message, &resp); err != nil {
			return newTransportError("receive", "failed to parse response", err)
		}
		if done, err := s.dispatch(ctx, &resp); done {
			return err
		}
	}
}

// dispatch forwards one response. It reports done when the read activity
// must stop, with the error to stop on.
func (s *Session) dispatch(ctx context.Context, resp *Response) (bool, error) {
	if resp.isError() {
		return true, resp.err()
	}
	if len(resp.Results) > 0 || resp.HasSpeechEvent() {
		for _, res := range resp.Results {
			s.metrics.resultReceived(res)
		}
		select {
		case s.results <- resp:
		case <-ctx.Done():
			return true, nil
		}
	}
	if resp.Finished {
		return true, errEndOfStream
	}
	return false, nil
}

func (s *Session) supervise(g *errgroup.Group) {
	err := g.Wait()
	if errors.Is(err, errEndOfStream) || errors.Is(err, context.Canceled) {
		err = nil
	}

	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	cancel()
	s.closeConn()
	s.source.Close()

	if err != nil && !s.canceled.Load() {
		s.fail(err)
	} else {
		s.setState(StateClosed)
		s.logger.Info("session closed")
	}
	s.metrics.sessionEnded()
	s.finish()
}

// Cancel stops both activities, closes the channel and releases the audio
// source. It is idempotent.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.canceled.Store(true)

		s.mu.RLock()
		started := s.started
		cancel := s.cancel
		s.mu.RUnlock()

		s.setState(StateClosed)
		if cancel != nil {
			cancel()
		}
		s.closeConn()
		s.source.Close()
		s.logger.Info("session canceled")

		if !started {
			s.finish()
		}
	})
}

// abort ends a session that failed while starting.
func (s *Session) abort(err error) error {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	s.closeConn()
	s.source.Close()
	if s.canceled.Load() || errors.Is(err, context.Canceled) {
		s.setState(StateClosed)
		s.finish()
		return err
	}
	s.fail(err)
	s.finish()
	return err
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	s.setState(StateErrored)
	s.metrics.sessionFailed(errorKind(err))
	s.logger.Error("session failed", "error", err)
}

func (s *Session) finish() {
	s.finishOnce.Do(func() {
		close(s.results)
		close(s.done)
	})
}

func (s *Session) write(req Request) error {
	msgType, data, err := req.encode()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrNotStarted
	}

	conn.SetWriteDeadline(time.Now().Add(s.client.options.WriteTimeout))
	return conn.WriteMessage(msgType, data)
}

func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.connClosed = true
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// transportFailure wraps a channel error, or reports cancellation when the
// error was caused by it.
func (s *Session) transportFailure(ctx context.Context, op, message string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return newTransportError(op, message, err)
}

func errorKind(err error) string {
	var (
		formatErr    *FormatError
		configErr    *ConfigError
		transportErr *TransportError
	)
	switch {
	case errors.As(err, &configErr):
		return "config"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &formatErr):
		return "format"
	default:
		return "other"
	}
}
