// Package audio provides PCM format description and sample-rate conversion
// for the live session engine.
//
// All engine-internal audio is 16-bit signed little-endian PCM. Resample is a
// pure function and may be shared freely across sessions.
package audio

import "fmt"

// Format describes the layout of a PCM buffer.
// It is an immutable value type; two formats are equal iff all fields match.
type Format struct {
	// SampleRate in Hz, e.g. 16000, 24000, 48000.
	SampleRate int
	// BitDepth in bits per sample: 8, 16, 24 or 32.
	BitDepth int
	// Channels is the interleaved channel count.
	Channels int
}

// PCM16Mono returns the most common engine format: 16-bit mono at the given rate.
func PCM16Mono(sampleRate int) Format {
	return Format{SampleRate: sampleRate, BitDepth: 16, Channels: 1}
}

// Validate reports whether the format describes a usable PCM layout.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("audio: bit depth must be 8, 16, 24 or 32, got %d", f.BitDepth)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("audio: channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// BytesPerSample returns the storage size of one sample.
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}
