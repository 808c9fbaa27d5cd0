package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

// AudioService owns the audio configuration and enforces the emergency
// volume override and its timed restoration.
type AudioService struct {
	device   repositories.AudioDevice
	pipeline repositories.AudioPipeline
	clock    clock.Clock
	logger   *zap.Logger

	configMu sync.RWMutex
	config   entities.AudioConfig

	statsMu       sync.RWMutex
	stats         entities.AudioStats
	filterSamples uint64

	initMu      sync.Mutex
	initialized bool

	// volumeMu serialises every volume write and guards the restoration epoch.
	// Any emergency transition bumps the epoch and closes abandon, which
	// releases pending restorations without touching the volume.
	volumeMu        sync.Mutex
	emergencyActive bool
	epoch           uint64
	abandon         chan struct{}
	pending         int
}

// AudioOption configures an AudioService
type AudioOption func(*AudioService)

// WithClock replaces the wall clock used for the restoration delay
func WithClock(c clock.Clock) AudioOption {
	return func(s *AudioService) {
		s.clock = c
	}
}

// WithAudioPipeline sets the external signal processing stage
func WithAudioPipeline(p repositories.AudioPipeline) AudioOption {
	return func(s *AudioService) {
		s.pipeline = p
	}
}

// NewAudioService creates a new audio service
func NewAudioService(config entities.AudioConfig, device repositories.AudioDevice, logger *zap.Logger, opts ...AudioOption) (*AudioService, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	s := &AudioService{
		device:  device,
		clock:   clock.New(),
		logger:  logger,
		config:  config,
		abandon: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize opens the audio device. Calling it again after success is a no-op.
func (s *AudioService) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized {
		return nil
	}

	if err := s.device.Open(ctx); err != nil {
		s.logger.Error("Audio device unavailable", zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrInitialization, err)
	}

	s.initialized = true
	cfg := s.GetConfig()
	s.logger.Info("Audio service initialized",
		zap.Int("sampleRate", cfg.SampleRate),
		zap.Int("bufferSize", cfg.BufferSize))
	return nil
}

// BeginEmergency marks an emergency as started and abandons any pending restoration
func (s *AudioService) BeginEmergency() {
	s.volumeMu.Lock()
	defer s.volumeMu.Unlock()

	s.emergencyActive = true
	s.nextEpochLocked()
}

// EndEmergency marks the emergency as over and abandons any pending restoration.
// Volume is restored only by a RestoreNormalVolume call made afterwards.
func (s *AudioService) EndEmergency() {
	s.volumeMu.Lock()
	defer s.volumeMu.Unlock()

	s.emergencyActive = false
	s.nextEpochLocked()
}

func (s *AudioService) nextEpochLocked() {
	close(s.abandon)
	s.abandon = make(chan struct{})
	s.epoch++
}

// SetEmergencyVolume forces the speaker to the emergency level.
// It succeeds without doing anything when the override is disabled.
func (s *AudioService) SetEmergencyVolume(ctx context.Context) error {
	cfg := s.GetConfig()
	if !cfg.EmergencyVolumeOverride {
		s.logger.Debug("Emergency volume override disabled")
		return nil
	}

	s.volumeMu.Lock()
	defer s.volumeMu.Unlock()

	s.emergencyActive = true
	s.nextEpochLocked()

	if cfg.EnableSpeakerVolumeControl {
		if err := s.device.ForceOutputVolume(ctx, cfg.EmergencyVolumeLevel); err != nil {
			s.logger.Error("Failed to force emergency volume",
				zap.Float32("level", cfg.EmergencyVolumeLevel),
				zap.Error(err))
			return fmt.Errorf("%w: force output volume: %w", domain.ErrDevice, err)
		}
		s.logger.Info("Emergency volume set",
			zap.Float32("level", cfg.EmergencyVolumeLevel),
			zap.Bool("priority", cfg.EmergencyAudioPriority))
	} else {
		s.logger.Info("Emergency volume override enabled without speaker control")
	}

	s.statsMu.Lock()
	s.stats.EmergencyVolumeActivations++
	s.statsMu.Unlock()
	return nil
}

// RestoreNormalVolume waits for the configured restoration delay and then
// hands the speaker back at the normal level. The wait is abandoned, without
// restoring, when an emergency starts or ends in the meantime. A restoration
// requested while an emergency is still active never writes the volume.
func (s *AudioService) RestoreNormalVolume(ctx context.Context) error {
	cfg := s.GetConfig()
	if !cfg.EmergencyVolumeOverride {
		return nil
	}

	s.volumeMu.Lock()
	epoch := s.epoch
	abandon := s.abandon
	s.pending++
	s.volumeMu.Unlock()
	defer s.finishPending()

	if delay := cfg.RestorationDelay(); delay > 0 {
		timer := s.clock.Timer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-abandon:
			s.logger.Info("Pending volume restoration abandoned")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.volumeMu.Lock()
	defer s.volumeMu.Unlock()

	// the emergency may have started between the timer firing and this lock
	if s.epoch != epoch || s.emergencyActive {
		s.logger.Info("Skipping volume restoration, emergency still in effect")
		return nil
	}

	cfg = s.GetConfig()
	if cfg.EnableSpeakerVolumeControl {
		if err := s.device.RestoreUserVolume(ctx, cfg.NormalVolumeLevel); err != nil {
			s.logger.Error("Failed to restore normal volume",
				zap.Float32("level", cfg.NormalVolumeLevel),
				zap.Error(err))
			return fmt.Errorf("%w: restore user volume: %w", domain.ErrDevice, err)
		}
	}
	s.logger.Info("Normal volume restored", zap.Float32("level", cfg.NormalVolumeLevel))

	s.statsMu.Lock()
	s.stats.VolumeRestorationEvents++
	s.statsMu.Unlock()
	return nil
}

func (s *AudioService) finishPending() {
	s.volumeMu.Lock()
	s.pending--
	s.volumeMu.Unlock()
}

// IsRestorationPending reports whether a restoration is waiting out its delay
func (s *AudioService) IsRestorationPending() bool {
	s.volumeMu.Lock()
	defer s.volumeMu.Unlock()
	return s.pending > 0
}

// IsEmergencyVolumeActive reports whether the override is currently in force
func (s *AudioService) IsEmergencyVolumeActive() bool {
	override := s.GetConfig().EmergencyVolumeOverride

	s.volumeMu.Lock()
	defer s.volumeMu.Unlock()
	return override && s.emergencyActive
}

// OptimizeInputVolume asks the platform to favour voice capture. Best effort.
func (s *AudioService) OptimizeInputVolume(ctx context.Context) {
	cfg := s.GetConfig()
	if !cfg.EnableInputVolumeOptimization {
		return
	}

	profile := entities.MicrophoneProfile{
		VoiceCapture:     true,
		NoiseSuppression: cfg.EnableNoiseFiltering,
		Priority:         cfg.EmergencyAudioPriority,
	}
	if err := s.device.AdjustMicrophoneGain(ctx, profile); err != nil {
		s.logger.Warn("Input volume optimization failed", zap.Error(err))
		return
	}
	s.logger.Info("Input volume optimized for emergency voice capture")
}

// ApplyNoiseFiltering runs the noise filter stage and records statistics.
// Without a pipeline, or with filtering disabled, the buffer passes through.
func (s *AudioService) ApplyNoiseFiltering(ctx context.Context, pcm []byte) []byte {
	start := s.clock.Now()
	out := append([]byte(nil), pcm...)

	var effectiveness *float32
	if s.pipeline != nil && s.GetConfig().EnableNoiseFiltering {
		filtered, score, err := s.pipeline.FilterNoise(ctx, pcm)
		if err != nil {
			s.logger.Warn("Noise filtering failed, passing audio through", zap.Error(err))
		} else {
			out = filtered
			effectiveness = &score
		}
	}

	s.updateStats(s.clock.Since(start), effectiveness)
	return out
}

// EnhanceAudio runs the enhancement stage and records statistics
func (s *AudioService) EnhanceAudio(ctx context.Context, pcm []byte) []byte {
	start := s.clock.Now()
	out := append([]byte(nil), pcm...)

	if s.pipeline != nil && s.GetConfig().EnableEnhancement {
		enhanced, err := s.pipeline.Enhance(ctx, pcm)
		if err != nil {
			s.logger.Warn("Audio enhancement failed, passing audio through", zap.Error(err))
		} else {
			out = enhanced
		}
	}

	s.updateStats(s.clock.Since(start), nil)
	return out
}

func (s *AudioService) updateStats(elapsed time.Duration, effectiveness *float32) {
	now := s.clock.Now()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.TotalSamplesProcessed++
	n := time.Duration(s.stats.TotalSamplesProcessed)
	s.stats.AvgProcessingTime += (elapsed - s.stats.AvgProcessingTime) / n

	if effectiveness != nil {
		s.filterSamples++
		s.stats.NoiseFilterEffectiveness += (*effectiveness - s.stats.NoiseFilterEffectiveness) / float32(s.filterSamples)
	}
	s.stats.LastProcessing = &now
}

// GetStats returns a snapshot of the audio statistics
func (s *AudioService) GetStats() entities.AudioStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	stats := s.stats
	if s.stats.LastProcessing != nil {
		last := *s.stats.LastProcessing
		stats.LastProcessing = &last
	}
	return stats
}

// GetConfig returns the current audio configuration
func (s *AudioService) GetConfig() entities.AudioConfig {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.config
}

// UpdateConfig replaces the audio configuration as a whole
func (s *AudioService) UpdateConfig(config entities.AudioConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	s.configMu.Lock()
	s.config = config
	s.configMu.Unlock()

	s.logger.Info("Audio configuration updated",
		zap.Bool("emergencyVolumeOverride", config.EmergencyVolumeOverride),
		zap.Uint64("restorationDelaySeconds", config.VolumeRestorationDelay))
	return nil
}
