package sample

import (
	"bytes"
	"math"
	"time"
)

// MPEG-1 Layer III, 128 kbps, 44.1 kHz, mono, no CRC.
var silentFrameHeader = [4]byte{0xFF, 0xFB, 0x90, 0xC4}

const (
	silentFrameSize    = 417 // 144 * 128000 / 44100, no padding
	samplesPerFrame    = 1152
	silentSampleRate   = 44100
	silentFrameBitrate = 128000
)

// SilentMP3 returns a constant-bitrate MP3 stream of zeroed frames lasting
// at least d.
func SilentMP3(d time.Duration) []byte {
	frameDur := float64(samplesPerFrame) / silentSampleRate
	n := int(math.Ceil(d.Seconds() / frameDur))
	if n < 1 {
		n = 1
	}
	frame := make([]byte, silentFrameSize)
	copy(frame, silentFrameHeader[:])
	return bytes.Repeat(frame, n)
}

// SilentMP3Duration is the duration a size/bitrate estimate assigns to b.
func SilentMP3Duration(b []byte) float64 {
	return float64(len(b)*8) / silentFrameBitrate
}
