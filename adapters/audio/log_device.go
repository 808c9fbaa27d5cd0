package audio

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

// LogDevice is an AudioDevice for drills and headless deployments.
// It logs every request and remembers the last applied settings.
type LogDevice struct {
	name   string
	logger *zap.Logger

	mu      sync.RWMutex
	opened  bool
	volume  float32
	profile entities.MicrophoneProfile
}

var _ repositories.AudioDevice = (*LogDevice)(nil)

// NewLogDevice creates a new logging audio device
func NewLogDevice(name string, logger *zap.Logger) *LogDevice {
	return &LogDevice{
		name:   name,
		logger: logger,
	}
}

// Open implements repositories.AudioDevice
func (d *LogDevice) Open(ctx context.Context) error {
	d.mu.Lock()
	d.opened = true
	d.mu.Unlock()

	d.logger.Info("Audio device opened", zap.String("device", d.name))
	return nil
}

// ForceOutputVolume implements repositories.AudioDevice
func (d *LogDevice) ForceOutputVolume(ctx context.Context, level float32) error {
	d.mu.Lock()
	d.volume = level
	d.mu.Unlock()

	d.logger.Info("Forcing output volume",
		zap.String("device", d.name),
		zap.Float32("level", level))
	return nil
}

// RestoreUserVolume implements repositories.AudioDevice
func (d *LogDevice) RestoreUserVolume(ctx context.Context, level float32) error {
	d.mu.Lock()
	d.volume = level
	d.mu.Unlock()

	d.logger.Info("Restoring user volume",
		zap.String("device", d.name),
		zap.Float32("level", level))
	return nil
}

// AdjustMicrophoneGain implements repositories.AudioDevice
func (d *LogDevice) AdjustMicrophoneGain(ctx context.Context, profile entities.MicrophoneProfile) error {
	d.mu.Lock()
	d.profile = profile
	d.mu.Unlock()

	d.logger.Info("Adjusting microphone gain",
		zap.String("device", d.name),
		zap.Bool("voiceCapture", profile.VoiceCapture),
		zap.Bool("noiseSuppression", profile.NoiseSuppression))
	return nil
}

// Volume returns the last volume written to the device
func (d *LogDevice) Volume() float32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.volume
}

// Opened reports whether Open has been called
func (d *LogDevice) Opened() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.opened
}

// Profile returns the last microphone profile applied
func (d *LogDevice) Profile() entities.MicrophoneProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.profile
}
