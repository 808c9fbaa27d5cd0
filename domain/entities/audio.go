package entities

import (
	"fmt"
	"math"
	"time"
)

// MaxVolumeRestorationDelay is the longest restoration delay accepted, in seconds
const MaxVolumeRestorationDelay = 3600

// AudioConfig holds the process-wide audio configuration.
// It is replaced as a whole, never mutated field by field.
type AudioConfig struct {
	SampleRate                    int     `json:"sample_rate" yaml:"sample_rate"`
	BufferSize                    int     `json:"buffer_size" yaml:"buffer_size"`
	EnableNoiseFiltering          bool    `json:"enable_noise_filtering" yaml:"enable_noise_filtering"`
	EnableEnhancement             bool    `json:"enable_enhancement" yaml:"enable_enhancement"`
	EmergencyVolumeOverride       bool    `json:"emergency_volume_override" yaml:"emergency_volume_override"`
	EmergencyVolumeLevel          float32 `json:"emergency_volume_level" yaml:"emergency_volume_level"`
	NormalVolumeLevel             float32 `json:"normal_volume_level" yaml:"normal_volume_level"`
	VolumeRestorationDelay        uint64  `json:"volume_restoration_delay" yaml:"volume_restoration_delay"` // seconds
	EnableSpeakerVolumeControl    bool    `json:"enable_speaker_volume_control" yaml:"enable_speaker_volume_control"`
	EnableInputVolumeOptimization bool    `json:"enable_input_volume_optimization" yaml:"enable_input_volume_optimization"`
	EmergencyAudioPriority        bool    `json:"emergency_audio_priority" yaml:"emergency_audio_priority"`
}

// DefaultAudioConfig returns the configuration used when nothing is supplied
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:                    16000,
		BufferSize:                    4096,
		EnableNoiseFiltering:          true,
		EnableEnhancement:             true,
		EmergencyVolumeOverride:       true,
		EmergencyVolumeLevel:          1.0,
		NormalVolumeLevel:             0.5,
		VolumeRestorationDelay:        30,
		EnableSpeakerVolumeControl:    true,
		EnableInputVolumeOptimization: true,
		EmergencyAudioPriority:        true,
	}
}

// RestorationDelay returns the restoration delay as a duration
func (c AudioConfig) RestorationDelay() time.Duration {
	return time.Duration(c.VolumeRestorationDelay) * time.Second
}

// Validate validates the audio configuration
func (c AudioConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	if !validLevel(c.EmergencyVolumeLevel) {
		return fmt.Errorf("emergency volume level must be between 0 and 1, got %f", c.EmergencyVolumeLevel)
	}
	if !validLevel(c.NormalVolumeLevel) {
		return fmt.Errorf("normal volume level must be between 0 and 1, got %f", c.NormalVolumeLevel)
	}
	if c.VolumeRestorationDelay > MaxVolumeRestorationDelay {
		return fmt.Errorf("volume restoration delay must be at most %d seconds, got %d",
			MaxVolumeRestorationDelay, c.VolumeRestorationDelay)
	}
	return nil
}

func validLevel(level float32) bool {
	return !math.IsNaN(float64(level)) && level >= 0 && level <= 1
}

// AudioStats holds cumulative audio processing counters
type AudioStats struct {
	TotalSamplesProcessed      uint64        `json:"total_samples_processed"`
	AvgProcessingTime          time.Duration `json:"avg_processing_time"`
	NoiseFilterEffectiveness   float32       `json:"noise_filter_effectiveness"`
	LastProcessing             *time.Time    `json:"last_processing,omitempty"`
	EmergencyVolumeActivations uint64        `json:"emergency_volume_activations"`
	VolumeRestorationEvents    uint64        `json:"volume_restoration_events"`
}

// MicrophoneProfile describes how the platform should bias input capture
type MicrophoneProfile struct {
	VoiceCapture     bool `json:"voice_capture"`
	NoiseSuppression bool `json:"noise_suppression"`
	Priority         bool `json:"priority"`
}
