package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned by [Decode] for payloads that are neither
// MP3 nor 16-bit PCM WAV.
var ErrUnsupportedFormat = errors.New("audio: unsupported audio format")

// Decode sniffs data and decodes it to PCM. WAV (RIFF, PCM 16-bit) and MP3
// (with or without an ID3v2 tag) are recognised.
func Decode(data []byte) (PCM, error) {
	switch {
	case len(data) == 0:
		return PCM{}, errors.New("audio: empty payload")
	case isWAV(data):
		return decodeWAV(data)
	case isMP3(data):
		return decodeMP3(data)
	default:
		return PCM{}, ErrUnsupportedFormat
	}
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	// MPEG frame sync: 11 set bits.
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// decodeMP3 decodes an MP3 stream. go-mp3 always yields 16-bit stereo.
func decodeMP3(data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("audio: mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("audio: mp3: %w", err)
	}
	if len(pcm) == 0 {
		return PCM{}, errors.New("audio: mp3: no samples")
	}
	return PCM{Data: pcm, Format: Format{SampleRate: dec.SampleRate(), Channels: 2}}, nil
}

// decodeWAV walks the RIFF chunks for "fmt " and "data".
func decodeWAV(data []byte) (PCM, error) {
	var (
		f       Format
		bits    uint16
		payload []byte
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) || end < body {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return PCM{}, errors.New("audio: wav: short fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(data[body : body+2]); tag != 1 {
				return PCM{}, fmt.Errorf("audio: wav: format tag %d is not PCM", tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			payload = data[body:end]
		}

		pos = body + size
		if size%2 != 0 {
			pos++
		}
	}

	switch {
	case !haveFmt:
		return PCM{}, errors.New("audio: wav: missing fmt chunk")
	case bits != 16:
		return PCM{}, fmt.Errorf("audio: wav: %d-bit samples not supported", bits)
	case f.SampleRate <= 0 || f.Channels <= 0:
		return PCM{}, fmt.Errorf("audio: wav: invalid format %s", f)
	case len(payload) == 0:
		return PCM{}, errors.New("audio: wav: no samples")
	}
	return PCM{Data: payload, Format: f}, nil
}

// EncodeWAV wraps 16-bit PCM in a minimal RIFF/WAVE container.
func EncodeWAV(p PCM) []byte {
	var buf bytes.Buffer
	size := len(p.Data)
	byteRate := p.Format.SampleRate * p.Format.frameSize()

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+size))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(p.Format.Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(p.Format.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(p.Format.frameSize()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(size))
	buf.Write(p.Data)
	return buf.Bytes()
}
