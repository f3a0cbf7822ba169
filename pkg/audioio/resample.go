package audioio

import (
	"encoding/binary"
	"math"
)

// Resample converts mono PCM16 samples from fromRate to toRate by linear
// interpolation. The output holds len(samples)*toRate/fromRate samples.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	out := make([]int16, len(samples)*toRate/fromRate)
	last := len(samples) - 1
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		a, b := float64(samples[j]), float64(samples[j+1])
		out[i] = int16(math.Round(a + (pos-float64(j))*(b-a)))
	}
	return out
}

// Downmix averages interleaved frames of the given channel count to mono.
// A trailing partial frame is dropped.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

// Convert returns chunk as mono PCM16 at rate, the format the session
// expects. Chunks already in that format are returned unchanged.
func Convert(chunk AudioChunk, rate int) AudioChunk {
	channels := chunk.Channels
	if channels <= 0 {
		channels = 1
	}
	if channels == 1 && (chunk.SampleRate == rate || chunk.SampleRate <= 0) {
		return chunk
	}
	samples := Downmix(BytesToSamples(chunk.Data), channels)
	return NewChunk(SamplesToBytes(Resample(samples, chunk.SampleRate, rate)), rate, 1)
}

// ResampleBytes resamples mono PCM16 little-endian bytes.
func ResampleBytes(data []byte, fromRate, toRate int) []byte {
	if fromRate == toRate {
		return data
	}
	return SamplesToBytes(Resample(BytesToSamples(data), fromRate, toRate))
}

// BytesToSamples decodes PCM16 little-endian bytes. An odd trailing byte
// is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes samples as PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// Level returns the RMS level of samples relative to full scale, 0 to 1.
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768
}
