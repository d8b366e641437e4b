package audio

import "fmt"

// G.711 μ-law constants
const (
	muLawBias = 0x84  // 132
	muLawClip = 32635 // max linear magnitude before companding
)

// DecodeMuLawToPCM16 converts G.711 μ-law (8-bit) to 16-bit signed PCM
// μ-law is a companding algorithm used in telephony
// Input: μ-law encoded bytes (8-bit samples at 8kHz)
// Output: 16-bit signed little-endian PCM samples, 2x input length
func DecodeMuLawToPCM16(muLaw []byte) []byte {
	if len(muLaw) == 0 {
		return nil
	}

	pcm := make([]int16, len(muLaw))

	for i, mu := range muLaw {
		// Invert all bits (μ-law uses inverted representation)
		mu = ^mu

		// Extract sign bit (bit 7), exponent (bits 4-6), mantissa (bits 0-3)
		sign := mu & 0x80
		exponent := (mu >> 4) & 0x07
		mantissa := mu & 0x0F

		// Reconstruct the biased linear value, then remove the bias
		linear := ((int32(mantissa) << 3) + muLawBias) << exponent
		linear -= muLawBias

		if sign != 0 {
			linear = -linear
		}

		pcm[i] = int16(linear)
	}

	// Convert to byte array (little-endian 16-bit)
	result := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		result[i*2] = byte(sample & 0xFF)
		result[i*2+1] = byte((sample >> 8) & 0xFF)
	}

	return result
}

// EncodePCM16ToMuLaw converts 16-bit signed little-endian PCM to G.711 μ-law
// Output is half the input length. The input must contain whole samples;
// an odd-length buffer is rejected so a corrupt frame can be dropped by the
// caller instead of producing garbage audio.
func EncodePCM16ToMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, nil
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCMBuffer, len(pcm))
	}

	muLaw := make([]byte, len(pcm)/2)

	for i := 0; i < len(muLaw); i++ {
		sample := int32(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))

		var sign byte
		if sample < 0 {
			sign = 0x80
			sample = -sample
		}
		if sample > muLawClip {
			sample = muLawClip
		}

		// Bias, then find the exponent segment containing the sample
		sample += muLawBias
		exponent := byte(7)
		for mask := int32(0x4000); (sample&mask) == 0 && exponent > 0; mask >>= 1 {
			exponent--
		}
		mantissa := byte(sample>>(exponent+3)) & 0x0F

		muLaw[i] = ^(sign | (exponent << 4) | mantissa)
	}

	return muLaw, nil
}
