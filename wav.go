package speechstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	wavFormatPCM        = 1
	wavFormatAlaw       = 6
	wavFormatMulaw      = 7
	wavFormatExtensible = 0xFFFE

	wavHeaderSize = 44
	maxFmtSize    = 1 << 12

	riffMagic  = "RIFF"
	waveFormat = "WAVE"
	flacMagic  = "fLaC"

	flacDefaultSampleRate = 16000
	flacDefaultChannels   = 1
)

// WavHeader is the parsed header of a RIFF/WAVE container. A FLAC stream is
// reported with Magic "fLaC" and defaulted fields, since FLAC does not carry
// them at a fixed offset.
type WavHeader struct {
	Magic         string
	Container     string
	FormatCode    uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataOffset    int64
	DataSize      uint32
	Encoding      AudioEncoding
}

// SampleWidth returns the number of bytes per sample.
func (h *WavHeader) SampleWidth() int {
	return (int(h.BitsPerSample) + 7) / 8
}

// FrameSize returns the number of bytes per frame across all channels.
func (h *WavHeader) FrameSize() int {
	return int(h.Channels) * h.SampleWidth()
}

// NumFrames returns the number of frames in the data chunk.
func (h *WavHeader) NumFrames() int64 {
	if h.FrameSize() == 0 {
		return 0
	}
	return int64(h.DataSize) / int64(h.FrameSize())
}

func (h *WavHeader) isFLAC() bool {
	return h.Magic == flacMagic
}

func encodingForFormat(code uint16) AudioEncoding {
	switch code {
	case wavFormatPCM:
		return EncodingLinearPCM
	case wavFormatAlaw:
		return EncodingAlaw
	case wavFormatMulaw:
		return EncodingMulaw
	default:
		return EncodingUnspecified
	}
}

func flacHeader() *WavHeader {
	return &WavHeader{
		Magic:         flacMagic,
		Channels:      flacDefaultChannels,
		SampleRate:    flacDefaultSampleRate,
		BitsPerSample: 16,
		Encoding:      EncodingFLAC,
	}
}

// ParseWavHeader reads a container header from r. It checks the RIFF and
// WAVE tags, then walks the sub-chunks until the data chunk, so r is left
// positioned at the first payload byte.
func ParseWavHeader(r io.Reader) (*WavHeader, error) {
	const op = "parse wav header"

	var head [12]byte
	if _, err := io.ReadFull(r, head[:4]); err != nil {
		return nil, &FormatError{Op: op, Message: "header too short", Cause: err}
	}
	if string(head[:4]) == flacMagic {
		return flacHeader(), nil
	}
	if _, err := io.ReadFull(r, head[4:]); err != nil {
		return nil, &FormatError{Op: op, Message: "header too short", Cause: err}
	}
	if string(head[0:4]) != riffMagic {
		return nil, newFormatError(op, "missing RIFF tag")
	}
	if string(head[8:12]) != waveFormat {
		return nil, newFormatError(op, "missing WAVE tag")
	}

	h := &WavHeader{Magic: riffMagic, Container: waveFormat}
	offset := int64(len(head))
	haveFmt := false

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, &FormatError{Op: op, Message: "missing data chunk", Cause: err}
		}
		offset += int64(len(chunk))
		id := string(chunk[:4])
		size := binary.LittleEndian.Uint32(chunk[4:])

		switch id {
		case "fmt ":
			if size < 16 || size > maxFmtSize {
				return nil, newFormatError(op, fmt.Sprintf("invalid fmt chunk size %d", size))
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, &FormatError{Op: op, Message: "truncated fmt chunk", Cause: err}
			}
			offset += int64(len(body))
			h.FormatCode = binary.LittleEndian.Uint16(body[0:2])
			h.Channels = binary.LittleEndian.Uint16(body[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			h.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			if h.FormatCode == wavFormatExtensible && size >= 26 {
				h.FormatCode = binary.LittleEndian.Uint16(body[24:26])
			}
			h.Encoding = encodingForFormat(h.FormatCode)
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, newFormatError(op, "data chunk precedes fmt chunk")
			}
			h.DataOffset = offset
			h.DataSize = size
			if err := h.validate(); err != nil {
				return nil, err
			}
			return h, nil

		default:
			skip := int64(size) + int64(size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, &FormatError{Op: op, Message: fmt.Sprintf("truncated %q chunk", id), Cause: err}
			}
			offset += skip
		}
	}
}

func (h *WavHeader) validate() error {
	const op = "parse wav header"
	if h.Channels == 0 {
		return newFormatError(op, "channel count is zero")
	}
	if h.BitsPerSample == 0 {
		return newFormatError(op, "bits per sample is zero")
	}
	if h.SampleRate == 0 {
		return newFormatError(op, "sample rate is zero")
	}
	if int64(h.DataSize)%int64(h.FrameSize()) != 0 {
		return newFormatError(op, fmt.Sprintf("data size %d is not a multiple of frame size %d", h.DataSize, h.FrameSize()))
	}
	return nil
}

// ValidateWavHeader is the strict check run before streaming. It accepts
// 16-bit linear PCM and 8-bit μ-law or A-law only.
func ValidateWavHeader(r io.Reader) (*WavHeader, error) {
	const op = "validate wav header"

	h, err := ParseWavHeader(r)
	if err != nil {
		return nil, err
	}
	if h.isFLAC() {
		return nil, newFormatError(op, "not a RIFF/WAVE container")
	}

	switch {
	case h.FormatCode == wavFormatPCM && h.BitsPerSample == 16:
	case (h.FormatCode == wavFormatMulaw || h.FormatCode == wavFormatAlaw) && h.BitsPerSample == 8:
	default:
		return nil, newFormatError(op, fmt.Sprintf("unsupported encoding: format code %d with %d bits per sample",
			h.FormatCode, h.BitsPerSample))
	}
	return h, nil
}

// ValidateWavFile runs ValidateWavHeader on the file at path.
func ValidateWavFile(path string) (*WavHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ValidateWavHeader(f)
}

// WavParams holds the audio parameters extracted by the permissive parser.
type WavParams struct {
	SampleRate  int
	Channels    int
	SampleWidth int
	DataOffset  int64
	DataSize    int64
	NumFrames   int64
	Encoding    AudioEncoding
}

// FrameSize returns the number of bytes per frame across all channels.
func (p *WavParams) FrameSize() int {
	return p.Channels * p.SampleWidth
}

// Duration returns the playback time of the payload.
func (p *WavParams) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}
	return time.Duration(p.NumFrames) * time.Second / time.Duration(p.SampleRate)
}

// BytesDuration returns the playback time represented by n payload bytes.
func (p *WavParams) BytesDuration(n int) time.Duration {
	if p.SampleRate == 0 || p.FrameSize() == 0 {
		return 0
	}
	frames := int64(n) / int64(p.FrameSize())
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// ReadWavParams extracts sample rate, channel count, bit width and the data
// offset regardless of the encoding. Deciding whether the encoding is usable
// is left to the caller.
func ReadWavParams(r io.Reader) (*WavParams, error) {
	h, err := ParseWavHeader(r)
	if err != nil {
		return nil, err
	}
	return &WavParams{
		SampleRate:  int(h.SampleRate),
		Channels:    int(h.Channels),
		SampleWidth: h.SampleWidth(),
		DataOffset:  h.DataOffset,
		DataSize:    int64(h.DataSize),
		NumFrames:   h.NumFrames(),
		Encoding:    h.Encoding,
	}, nil
}

// ReadWavFileParams runs ReadWavParams on the file at path.
func ReadWavFileParams(path string) (*WavParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWavParams(f)
}

func isFormatError(err error) bool {
	var formatErr *FormatError
	return errors.As(err, &formatErr)
}
