package speechstream

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavFileHeader mirrors the canonical 44-byte PCM header.
type wavFileHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WavWriter writes mono 16-bit PCM into a RIFF/WAVE container. The RIFF
// and data sizes are written as placeholders and patched on Close.
type WavWriter struct {
	w          io.WriteSeeker
	closer     io.Closer
	sampleRate int
	dataSize   int64
	closed     bool
}

// NewWavWriter writes the header to w and returns a writer for samples.
func NewWavWriter(w io.WriteSeeker, sampleRate int) (*WavWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	header := wavFileHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * numChannels * bitsPerSample / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return &WavWriter{w: w, sampleRate: sampleRate}, nil
}

// CreateWavFile creates path and returns a writer that owns the file.
func CreateWavFile(path string, sampleRate int) (*WavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	ww, err := NewWavWriter(f, sampleRate)
	if err != nil {
		f.Close()
		return nil, err
	}
	ww.closer = f
	return ww, nil
}

// Write appends little-endian 16-bit PCM bytes.
func (ww *WavWriter) Write(p []byte) (int, error) {
	if ww.closed {
		return 0, os.ErrClosed
	}
	if len(p)%2 != 0 {
		return 0, fmt.Errorf("PCM payload must hold whole 16-bit samples, got %d bytes", len(p))
	}
	n, err := ww.w.Write(p)
	ww.dataSize += int64(n)
	return n, err
}

// WriteSamples appends samples.
func (ww *WavWriter) WriteSamples(samples []int16) error {
	if ww.closed {
		return os.ErrClosed
	}
	if err := binary.Write(ww.w, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	ww.dataSize += int64(len(samples)) * 2
	return nil
}

// DataSize returns the number of payload bytes written so far.
func (ww *WavWriter) DataSize() int64 {
	return ww.dataSize
}

// Close patches the RIFF chunk size and data size, then closes the
// underlying file if the writer owns it.
func (ww *WavWriter) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true

	err := ww.patchSizes()
	if ww.closer != nil {
		if cerr := ww.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (ww *WavWriter) patchSizes() error {
	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], uint32(wavHeaderSize-8+ww.dataSize))
	if _, err := ww.w.Seek(4, io.SeekStart); err != nil {
		return err
	}
	if _, err := ww.w.Write(buf[:]); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(ww.dataSize))
	if _, err := ww.w.Seek(wavHeaderSize-4, io.SeekStart); err != nil {
		return err
	}
	if _, err := ww.w.Write(buf[:]); err != nil {
		return err
	}

	_, err := ww.w.Seek(0, io.SeekEnd)
	return err
}
