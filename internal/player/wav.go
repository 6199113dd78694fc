package player

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBadWAV is returned for a RIFF/WAVE stream without usable fmt and data chunks.
var ErrBadWAV = errors.New("invalid WAVE stream")

// probeAudio dispatches on the container: RIFF/WAVE (what speech synthesis
// emits for raw PCM) or an MPEG frame stream.
func probeAudio(data []byte) (*audioInfo, error) {
	if isWAV(data) {
		return probeWAV(data)
	}
	return probeMP3(data)
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// probeWAV walks the RIFF chunks for fmt and data. Duration is the data
// size over the byte rate.
func probeWAV(data []byte) (*audioInfo, error) {
	var sampleRate, byteRate int
	var dataOff, dataLen int64 = -1, 0

	off := int64(12)
	for off+8 <= int64(len(data)) {
		id := string(data[off : off+4])
		size := int64(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > int64(len(data)) {
				return nil, fmt.Errorf("short fmt chunk: %w", ErrBadWAV)
			}
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			byteRate = int(binary.LittleEndian.Uint32(data[body+8 : body+12]))
		case "data":
			dataOff = body
			// streaming writers leave the size at 0xFFFFFFFF
			dataLen = min(size, int64(len(data))-body)
		}
		if dataOff >= 0 && byteRate > 0 {
			break
		}
		off = body + size + size&1
	}

	switch {
	case byteRate <= 0:
		return nil, fmt.Errorf("missing fmt chunk: %w", ErrBadWAV)
	case dataOff < 0:
		return nil, fmt.Errorf("missing data chunk: %w", ErrBadWAV)
	}
	return &audioInfo{
		Bitrate:    byteRate * 8,
		SampleRate: sampleRate,
		Duration:   float64(dataLen) / float64(byteRate),
		DataOffset: dataOff,
	}, nil
}
