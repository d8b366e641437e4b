package audio

import "fmt"

// ResamplePCM16 resamples 16-bit signed little-endian PCM between sample
// rates using linear interpolation. Equal rates return the input unchanged.
// Output sample count is floor(inputSamples * dstRate / srcRate).
//
// Linear interpolation is a deliberate latency trade-off for live telephony
// audio; it is not high-fidelity resampling.
func ResamplePCM16(pcm []byte, srcRate, dstRate int) ([]byte, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", srcRate, dstRate)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCMBuffer, len(pcm))
	}
	if srcRate == dstRate {
		return pcm, nil
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	// Convert bytes to int16 samples
	in := make([]int16, len(pcm)/2)
	for i := 0; i < len(in); i++ {
		in[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}

	outCount := len(in) * dstRate / srcRate
	out := make([]int16, outCount)

	step := float64(srcRate) / float64(dstRate)
	for i := 0; i < outCount; i++ {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		s0 := float64(in[j])
		s1 := float64(in[j+1])
		out[i] = int16(s0 + (s1-s0)*frac)
	}

	// Convert back to bytes (little-endian)
	result := make([]byte, len(out)*2)
	for i, sample := range out {
		result[i*2] = byte(sample & 0xFF)
		result[i*2+1] = byte((sample >> 8) & 0xFF)
	}

	return result, nil
}
