package speechstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// AudioSource produces the audio frames a session streams. Next returns
// io.EOF once the source is exhausted or closed; a source is not
// restartable. Close must be idempotent and safe to call while Next is
// blocked.
type AudioSource interface {
	Next(ctx context.Context) (*AudioFrame, error)
	Close() error
}

// BufferSource yields a single frame wrapping an in-memory buffer.
type BufferSource struct {
	data []byte
	done atomic.Bool
}

func NewBufferSource(data []byte) *BufferSource {
	return &BufferSource{data: data}
}

func (s *BufferSource) Next(ctx context.Context) (*AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done.Swap(true) {
		return nil, io.EOF
	}
	return &AudioFrame{Audio: s.data}, nil
}

func (s *BufferSource) Close() error {
	s.done.Store(true)
	return nil
}

type sourceOptions struct {
	pacer         Pacer
	logger        *slog.Logger
	includeHeader bool
}

// SourceOption configures a FileChunkIterator.
type SourceOption func(*sourceOptions)

// WithPacer delays each frame by the audio time it represents. It only
// applies to linear PCM input.
func WithPacer(p Pacer) SourceOption {
	return func(o *sourceOptions) { o.pacer = p }
}

func WithLogger(l *slog.Logger) SourceOption {
	return func(o *sourceOptions) { o.logger = l }
}

// WithHeader makes the first frame carry the container header bytes in
// front of the first chunk of payload, for backends that sniff the header.
func WithHeader(include bool) SourceOption {
	return func(o *sourceOptions) { o.includeHeader = include }
}

// FileChunkIterator reads a file in chunks of a fixed number of frames.
// WAV input is chunked by frame size; any other input is read as raw bytes,
// chunkFrames bytes at a time.
type FileChunkIterator struct {
	path        string
	params      *WavParams
	framed      bool
	chunkBytes  int
	headerBytes int
	pacer       Pacer
	logger      *slog.Logger

	mu     sync.Mutex
	file   *os.File
	reader io.Reader
	offset time.Duration
	frames int
	first  bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenFileSource opens path and prepares to yield chunks of chunkFrames
// frames each.
func OpenFileSource(path string, chunkFrames int, opts ...SourceOption) (*FileChunkIterator, error) {
	if chunkFrames <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkFrames)
	}
	o := sourceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	params, err := ReadWavParams(f)
	if err != nil {
		if !isFormatError(err) {
			f.Close()
			return nil, err
		}
		params = nil
	}

	it := &FileChunkIterator{
		path:   path,
		params: params,
		framed: params != nil && params.Encoding != EncodingFLAC,
		file:   f,
		pacer:  o.pacer,
		logger: o.logger.With("path", path),
		first:  true,
	}

	if it.pacer != nil && (params == nil || params.Encoding != EncodingLinearPCM) {
		it.logger.Warn("pacing disabled, source encoding is not linear PCM")
		it.pacer = nil
	}

	if it.framed {
		it.chunkBytes = chunkFrames * params.FrameSize()
		start := params.DataOffset
		if o.includeHeader {
			it.headerBytes = int(params.DataOffset)
			start = 0
		}
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		it.reader = io.LimitReader(f, params.DataOffset+params.DataSize-start)
	} else {
		it.chunkBytes = chunkFrames
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		it.reader = f
	}
	return it, nil
}

// Params returns the parsed WAV parameters, or nil for non-WAV input.
func (it *FileChunkIterator) Params() *WavParams {
	return it.params
}

// Frames returns the number of frames yielded so far.
func (it *FileChunkIterator) Frames() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.frames
}

// Closed reports whether the file handle has been released.
func (it *FileChunkIterator) Closed() bool {
	return it.closed.Load()
}

func (it *FileChunkIterator) Next(ctx context.Context) (*AudioFrame, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed.Load() {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	skip := 0
	size := it.chunkBytes
	if it.first {
		skip = it.headerBytes
		size += skip
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(it.reader, buf)
	switch {
	case errors.Is(err, io.EOF):
		it.Close()
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
	case err != nil:
		if it.closed.Load() {
			return nil, io.EOF
		}
		it.Close()
		return nil, fmt.Errorf("read %s: %w", it.path, err)
	}
	it.first = false

	frame := &AudioFrame{Audio: buf[:n], Offset: it.offset}
	payload := frame.Audio[min(skip, n):]
	var d time.Duration
	if it.framed {
		d = it.params.BytesDuration(len(payload))
	}

	if it.pacer != nil {
		if err := it.pacer.Pace(ctx, payload, d); err != nil {
			return nil, err
		}
	}
	it.offset += d
	it.frames++
	return frame, nil
}

// Close releases the file handle. It is safe to call more than once and
// concurrently with Next.
func (it *FileChunkIterator) Close() error {
	it.closeOnce.Do(func() {
		it.closed.Store(true)
		it.closeErr = it.file.Close()
	})
	return it.closeErr
}
