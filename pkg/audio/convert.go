package audio

import (
	"fmt"
	"log/slog"
	"time"
)

// Format describes the sample rate and channel count of 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// frameSize is the number of bytes per sample frame.
func (f Format) frameSize() int { return 2 * f.Channels }

// Duration returns how long n bytes of PCM in this format play.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := int64(n / f.frameSize())
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// PCM is decoded signed 16-bit little-endian audio.
type PCM struct {
	Data   []byte
	Format Format
}

// Duration returns the playing time of p.
func (p PCM) Duration() time.Duration { return p.Format.Duration(len(p.Data)) }

// Convert returns p in the target format. It resamples first, then converts
// channels. Only mono and stereo are supported; other channel counts are
// passed through with a warning. When p already matches target it is returned
// unchanged.
func Convert(p PCM, target Format) PCM {
	if p.Format == target {
		return p
	}
	slog.Debug("audio: converting pcm", "from", p.Format, "to", target)

	ch := p.Format.Channels
	if ch < 1 || ch > 2 || target.Channels < 1 || target.Channels > 2 {
		slog.Warn("audio: unsupported channel layout, passing through", "from", p.Format, "to", target)
		return p
	}
	data := p.Data
	if n := len(data) % p.Format.frameSize(); n != 0 {
		data = data[:len(data)-n]
	}

	if p.Format.SampleRate != target.SampleRate {
		data = Resample16(data, ch, p.Format.SampleRate, target.SampleRate)
	}
	switch {
	case ch == 1 && target.Channels == 2:
		data = MonoToStereo(data)
	case ch == 2 && target.Channels == 1:
		data = StereoToMono(data)
	}
	return PCM{Data: data, Format: target}
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages L and R of each stereo frame.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		putSample(out, i, clamp16((l+r)/2))
	}
	return out
}

// Resample16 resamples interleaved PCM with the given channel count from
// srcRate to dstRate using linear interpolation per channel. Invalid rates or
// equal rates return pcm unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	frameBytes := 2 * channels
	srcFrames := len(pcm) / frameBytes
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*frameBytes)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for c := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+c))
			s1 := float64(sampleAt(pcm, next*channels+c))
			putSample(out, i*channels+c, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, v int16) {
	pcm[i*2] = byte(v)
	pcm[i*2+1] = byte(v >> 8)
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
