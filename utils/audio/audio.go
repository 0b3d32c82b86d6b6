// Package audio holds PCM helpers shared by the source and VAD layers:
// µ-law/A-law decoding, channel mixdown, float/int16 conversion and WAV
// framing. No resampling; the pipeline runs at one fixed rate.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/zaf/g711"

	"voicekit/core"
)

// 16-bit PCM bounds.
const (
	pcmMax = 32767
	pcmMin = -32768
)

// ULawBytesToPCM decodes µ-law samples to 16-bit linear PCM.
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// ALawBytesToPCM decodes A-law samples to 16-bit linear PCM.
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// PCMBytesToULaw encodes 16-bit linear PCM as µ-law.
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if err := ValidatePCMData(pcm, 1); err != nil {
		return nil, err
	}
	return g711.EncodeUlaw(pcm), nil
}

// PCMBytesToALaw encodes 16-bit linear PCM as A-law.
func PCMBytesToALaw(pcm []byte) ([]byte, error) {
	if err := ValidatePCMData(pcm, 1); err != nil {
		return nil, err
	}
	return g711.EncodeAlaw(pcm), nil
}

// ValidatePCMData checks that pcm holds whole 16-bit samples for the given
// channel count.
func ValidatePCMData(pcm []byte, numChannels int) error {
	if numChannels < 1 {
		return fmt.Errorf("audio: invalid channel count %d", numChannels)
	}
	if len(pcm)%(2*numChannels) != 0 {
		return fmt.Errorf("audio: pcm length %d not aligned to %d-channel 16-bit samples", len(pcm), numChannels)
	}
	return nil
}

// ConvertToMonoPCM normalizes an AudioChunk to mono 16-bit linear PCM at the
// target sample rate. µ-law and A-law input is decoded first; multi-channel
// input is mixed down. Sample-rate mismatches are an error; the capture
// layer is expected to deliver the session rate.
func ConvertToMonoPCM(chunk core.AudioChunk, targetRate int) ([]byte, error) {
	if chunk.Data == nil {
		return nil, fmt.Errorf("audio: chunk has no data")
	}
	if chunk.SampleRate != targetRate {
		return nil, fmt.Errorf("audio: chunk rate %d Hz, session runs at %d Hz", chunk.SampleRate, targetRate)
	}

	var pcm []byte
	switch chunk.Format {
	case core.PCM:
		pcm = *chunk.Data
	case core.ULAW:
		pcm = ULawBytesToPCM(*chunk.Data)
	case core.ALAW:
		pcm = ALawBytesToPCM(*chunk.Data)
	default:
		return nil, fmt.Errorf("audio: unsupported encoding format %d", chunk.Format)
	}

	channels := chunk.Channels
	if channels == 0 {
		channels = 1
	}
	if err := ValidatePCMData(pcm, channels); err != nil {
		return nil, err
	}
	if channels == 1 {
		return pcm, nil
	}
	return mixToMono(pcm, channels), nil
}

// mixToMono averages the channels of interleaved 16-bit PCM.
func mixToMono(pcm []byte, channels int) []byte {
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	mono := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[i*frameBytes+c*2:])))
		}
		avg := sum / channels
		if avg > pcmMax {
			avg = pcmMax
		} else if avg < pcmMin {
			avg = pcmMin
		}
		binary.LittleEndian.PutUint16(mono[i*2:], uint16(int16(avg)))
	}
	return mono
}

// Float32ToPCMBytes converts normalized samples (~[-1, 1]) back to 16-bit
// little-endian PCM, clamping out-of-range values.
func Float32ToPCMBytes(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int(s * 32768.0)
		if v > pcmMax {
			v = pcmMax
		} else if v < pcmMin {
			v = pcmMin
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}

// Int16ToPCMBytes packs samples as little-endian bytes.
func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// PCMBytesToWavBytes wraps raw 16-bit PCM in a WAV container.
func PCMBytesToWavBytes(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	var buf bytes.Buffer
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * 2)
	blockAlign := uint16(numChannels * 2)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // PCM fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // bits per sample
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// GetPCMDurationSeconds returns the duration of raw 16-bit PCM.
func GetPCMDurationSeconds(pcm []byte, numChannels, sampleRate int) (float64, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return 0, err
	}
	if sampleRate <= 0 {
		return 0, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	return float64(len(pcm)/(2*numChannels)) / float64(sampleRate), nil
}
