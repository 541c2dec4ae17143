package speechstream

import (
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type wavSpec struct {
	formatCode uint16
	channels   uint16
	sampleRate uint32
	bits       uint16
	payload    []byte
	// listChunk inserts a LIST chunk between fmt and data.
	listChunk bool
}

// buildWav assembles a RIFF/WAVE container from spec.
func buildWav(spec wavSpec) []byte {
	var out []byte
	le16 := func(v uint16) { out = binary.LittleEndian.AppendUint16(out, v) }
	le32 := func(v uint32) { out = binary.LittleEndian.AppendUint32(out, v) }

	frameSize := uint16(spec.channels) * ((spec.bits + 7) / 8)
	list := []byte("INFOISFT\x05\x00\x00\x00test\x00\x00")

	riffSize := 4 + 8 + 16 + 8 + len(spec.payload)
	if spec.listChunk {
		riffSize += 8 + len(list)
	}

	out = append(out, "RIFF"...)
	le32(uint32(riffSize))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	le32(16)
	le16(spec.formatCode)
	le16(spec.channels)
	le32(spec.sampleRate)
	le32(spec.sampleRate * uint32(frameSize))
	le16(frameSize)
	le16(spec.bits)
	if spec.listChunk {
		out = append(out, "LIST"...)
		le32(uint32(len(list)))
		out = append(out, list...)
	}
	out = append(out, "data"...)
	le32(uint32(len(spec.payload)))
	out = append(out, spec.payload...)
	return out
}

func pcm16Spec(sampleRate uint32, payloadBytes int) wavSpec {
	payload := make([]byte, payloadBytes)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	return wavSpec{formatCode: wavFormatPCM, channels: 1, sampleRate: sampleRate, bits: 16, payload: payload}
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
