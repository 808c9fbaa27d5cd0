package repositories

import (
	"context"

	"github.com/solana-sos/emergency/domain/entities"
)

// AudioDevice abstracts the platform audio controls of the responder's phone
type AudioDevice interface {
	// Open acquires the underlying audio resource
	Open(ctx context.Context) error
	// ForceOutputVolume forces speaker output to level (0.0-1.0), overriding user preference
	ForceOutputVolume(ctx context.Context, level float32) error
	// RestoreUserVolume hands speaker output back at level (0.0-1.0)
	RestoreUserVolume(ctx context.Context, level float32) error
	// AdjustMicrophoneGain biases input capture toward the given profile
	AdjustMicrophoneGain(ctx context.Context, profile entities.MicrophoneProfile) error
}

// AudioPipeline abstracts the external signal processing stage
type AudioPipeline interface {
	// FilterNoise returns the filtered buffer and an effectiveness score between 0 and 1
	FilterNoise(ctx context.Context, pcm []byte) ([]byte, float32, error)
	// Enhance returns the enhanced buffer
	Enhance(ctx context.Context, pcm []byte) ([]byte, error)
}
