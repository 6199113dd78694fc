package player

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNoFrame is returned when no MPEG audio frame header can be found.
var ErrNoFrame = errors.New("no valid MPEG frame found")

// audioInfo is what a header probe tells us about an audio stream.
type audioInfo struct {
	Bitrate    int     // bits per second
	SampleRate int     // Hz
	Duration   float64 // seconds, estimated from size and bitrate
	DataOffset int64   // first byte after any ID3v2 tag
}

// MPEG audio version/layer/bitrate lookup tables (ISO 11172-3 / 13818-3).
var bitrateTable = [2][3][16]int{
	// MPEG-1
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	},
	// MPEG-2 / MPEG-2.5
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	},
}

var sampleRateTable = [3][4]int{
	{44100, 48000, 32000, 0}, // MPEG-1
	{22050, 24000, 16000, 0}, // MPEG-2
	{11025, 12000, 8000, 0},  // MPEG-2.5
}

// probeMP3 finds the first frame header after any ID3v2 tag and estimates
// duration from the remaining size at that bitrate.
func probeMP3(data []byte) (*audioInfo, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("audio too short (%d bytes): %w", len(data), ErrNoFrame)
	}

	offset := int64(0)
	if len(data) >= 10 && string(data[:3]) == "ID3" {
		// synchsafe integer, 7 bits per byte
		tagSize := int64(data[6])<<21 | int64(data[7])<<14 | int64(data[8])<<7 | int64(data[9])
		offset = 10 + tagSize
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("ID3 tag runs past end of audio: %w", ErrNoFrame)
		}
	}

	buf := data[offset:]
	if len(buf) > 8192 {
		buf = buf[:8192]
	}

	for i := 0; i < len(buf)-4; i++ {
		if buf[i] != 0xFF || buf[i+1]&0xE0 != 0xE0 {
			continue
		}

		hdr := binary.BigEndian.Uint32(buf[i : i+4])

		versionBits := (hdr >> 19) & 0x03
		layerBits := (hdr >> 17) & 0x03
		bitrateIdx := (hdr >> 12) & 0x0F
		sampleIdx := (hdr >> 10) & 0x03

		if bitrateIdx == 0 || bitrateIdx == 15 || sampleIdx == 3 || layerBits == 0 {
			continue
		}

		// version bits: 0=2.5, 1=reserved, 2=2, 3=1
		var versionIdx, sampleVersion int
		switch versionBits {
		case 3:
			versionIdx, sampleVersion = 0, 0
		case 2:
			versionIdx, sampleVersion = 1, 1
		case 0:
			versionIdx, sampleVersion = 1, 2
		default:
			continue
		}

		// layer bits: 1=III, 2=II, 3=I
		layerIdx := 3 - int(layerBits)

		bitrate := bitrateTable[versionIdx][layerIdx][bitrateIdx] * 1000
		sampleRate := sampleRateTable[sampleVersion][sampleIdx]
		if bitrate == 0 || sampleRate == 0 {
			continue
		}

		audioSize := int64(len(data)) - offset
		return &audioInfo{
			Bitrate:    bitrate,
			SampleRate: sampleRate,
			Duration:   float64(audioSize*8) / float64(bitrate),
			DataOffset: offset,
		}, nil
	}

	return nil, ErrNoFrame
}
