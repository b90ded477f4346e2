package audio

import "encoding/binary"

// NeedsResampling reports whether a buffer in src format must be converted
// before being sent to a consumer expecting dst. Only sample rate and bit
// depth are compared; channel count is a known limitation and is not
// considered here.
func NeedsResampling(src, dst Format) bool {
	return src.SampleRate != dst.SampleRate || src.BitDepth != dst.BitDepth
}

// Resample converts a PCM buffer from src to dst format using linear
// interpolation over 16-bit signed little-endian samples.
//
// When src and dst agree on sample rate and bit depth the input is returned
// unchanged. Otherwise the output holds exactly
// floor(srcSamples * dstRate / srcRate) samples; reads past the end of the
// input are clamped to the last sample, and reads outside the buffer yield
// silence. Interpolated values are truncated, not rounded, so output is
// bit-reproducible across platforms.
func Resample(data []byte, src, dst Format) []byte {
	if !NeedsResampling(src, dst) {
		return data
	}

	bytesPerSample := src.BytesPerSample()
	if bytesPerSample == 0 || len(data) < bytesPerSample {
		return nil
	}

	srcSamples := len(data) / bytesPerSample
	dstSamples := srcSamples * dst.SampleRate / src.SampleRate
	if dstSamples <= 0 {
		return nil
	}

	ratio := float64(src.SampleRate) / float64(dst.SampleRate)
	out := make([]byte, dstSamples*2)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		frac := srcPos - float64(i0)

		i1 := i0 + 1
		if i1 > srcSamples-1 {
			i1 = srcSamples - 1
		}

		s0 := float64(sampleAt(data, i0))
		s1 := float64(sampleAt(data, i1))

		// Truncation, not rounding.
		v := int16(s0 + frac*(s1-s0))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}

	return out
}

// sampleAt reads the 16-bit little-endian sample at the given index,
// returning silence for any read outside the buffer.
func sampleAt(data []byte, idx int) int16 {
	off := idx * 2
	if idx < 0 || off+2 > len(data) {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(data[off:]))
}

// Int16ToBytes converts int16 samples to an s16le byte slice.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToInt16 converts an s16le byte slice to int16 samples.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
