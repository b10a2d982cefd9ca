// internal/pipeline/vad/vad.go
package vad

import (
	"math"
	"time"
)

// EventType marks a speech boundary detected in the audio stream.
type EventType int

const (
	EventNone EventType = iota
	EventSpeechStart
	EventSpeechEnd
)

// Config tunes the energy detector.
type Config struct {
	// EnergyThreshold is the RMS level above which a frame counts as speech.
	EnergyThreshold float64
	// MinSilence is how long energy must stay below the threshold before an
	// utterance is considered finished.
	MinSilence time.Duration
	// MinSpeech is how long energy must stay above the threshold before an
	// utterance is considered started. Filters out clicks and pops.
	MinSpeech time.Duration
	// FrameDuration is the wall-clock length of one frame.
	FrameDuration time.Duration
}

// DefaultConfig mirrors the agent's deployed tuning.
func DefaultConfig() Config {
	return Config{
		EnergyThreshold: 500,
		MinSilence:      100 * time.Millisecond,
		MinSpeech:       60 * time.Millisecond,
		FrameDuration:   20 * time.Millisecond,
	}
}

// Detector is an energy-based voice activity detector over PCM16 frames.
// It is a pure state machine: feed frames in order, read boundary events out.
type Detector struct {
	config Config

	inSpeech   bool
	speechRun  time.Duration
	silenceRun time.Duration

	// ramp holds the loud frames seen while speechRun climbs toward
	// MinSpeech. They belong to the utterance and are drained on start.
	ramp [][]byte
}

func New(config Config) *Detector {
	if config.FrameDuration == 0 {
		config.FrameDuration = 20 * time.Millisecond
	}
	return &Detector{config: config}
}

// Process consumes one PCM16 little-endian frame and reports any boundary
// event it completes.
func (d *Detector) Process(frame []byte) EventType {
	active := rms(frame) >= d.config.EnergyThreshold

	if d.inSpeech {
		if active {
			// Isolated silent frames inside speech reset here, so a short
			// pause does not split the utterance.
			d.silenceRun = 0
			return EventNone
		}

		d.silenceRun += d.config.FrameDuration
		if d.silenceRun >= d.config.MinSilence {
			d.inSpeech = false
			d.silenceRun = 0
			d.speechRun = 0
			return EventSpeechEnd
		}
		return EventNone
	}

	if !active {
		d.speechRun = 0
		d.ramp = nil
		return EventNone
	}

	d.ramp = append(d.ramp, frame)
	d.speechRun += d.config.FrameDuration
	if d.speechRun >= d.config.MinSpeech {
		d.inSpeech = true
		d.silenceRun = 0
		return EventSpeechStart
	}
	return EventNone
}

// DrainRamp returns the frames accumulated during the speech onset ramp,
// including the frame that fired EventSpeechStart, and clears the buffer.
func (d *Detector) DrainRamp() [][]byte {
	frames := d.ramp
	d.ramp = nil
	return frames
}

// InSpeech reports whether the detector is currently inside an utterance.
func (d *Detector) InSpeech() bool {
	return d.inSpeech
}

// Reset returns the detector to its idle state.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechRun = 0
	d.silenceRun = 0
	d.ramp = nil
}

// rms computes the root mean square amplitude of a PCM16 LE frame.
func rms(frame []byte) float64 {
	if len(frame) < 2 {
		return 0
	}

	var sum float64
	n := len(frame) / 2
	for i := 0; i < n; i++ {
		sample := int16(uint16(frame[2*i]) | uint16(frame[2*i+1])<<8)
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}
