// Package pcm describes the 16-bit mono PCM formats carried over the voice link.
package pcm

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// L16Mono8K is audio/L16; rate=8000; channels=1 (narrowband voice).
	L16Mono8K Format = iota
	// L16Mono16K is audio/L16; rate=16000; channels=1 (wideband voice).
	L16Mono16K
)

// Format is a supported PCM configuration.
type Format int

// ForRate returns the format for a sample rate.
func ForRate(rate int) (Format, error) {
	switch rate {
	case 8000:
		return L16Mono8K, nil
	case 16000:
		return L16Mono16K, nil
	}
	return 0, fmt.Errorf("pcm: unsupported sample rate %d", rate)
}

// SampleRate returns the sample rate in Hz.
func (f Format) SampleRate() int {
	switch f {
	case L16Mono8K:
		return 8000
	case L16Mono16K:
		return 16000
	}
	panic("pcm: invalid audio format")
}

// Channels is always 1.
func (f Format) Channels() int { return 1 }

// Depth is always 16 bits.
func (f Format) Depth() int { return 16 }

// FrameSize is the byte size of one sample frame.
func (f Format) FrameSize() int {
	return f.Channels() * f.Depth() / 8
}

// SamplesInDuration returns the number of samples in d.
func (f Format) SamplesInDuration(d time.Duration) int64 {
	return int64(time.Duration(f.SampleRate()) * d / time.Second)
}

// BytesInDuration returns the number of bytes in d.
func (f Format) BytesInDuration(d time.Duration) int64 {
	return f.SamplesInDuration(d) * int64(f.FrameSize())
}

// Duration returns the playback duration of n bytes.
func (f Format) Duration(n int64) time.Duration {
	samples := n / int64(f.FrameSize())
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate())
}

// BytesRate returns bytes per second.
func (f Format) BytesRate() int {
	return f.SampleRate() * f.FrameSize()
}

func (f Format) String() string {
	switch f {
	case L16Mono8K:
		return "audio/L16; rate=8000; channels=1"
	case L16Mono16K:
		return "audio/L16; rate=16000; channels=1"
	}
	panic("pcm: invalid audio format")
}

// BytesToInt16 decodes little-endian samples; a trailing odd byte is dropped.
func BytesToInt16(dst []int16, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
	return n
}

// Int16ToBytes encodes samples little-endian and returns bytes written.
func Int16ToBytes(dst []byte, src []int16) int {
	n := min(len(dst)/2, len(src))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(src[i]))
	}
	return n * 2
}
