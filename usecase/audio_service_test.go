package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
)

func newTestAudioService(t *testing.T, cfg entities.AudioConfig, device *fakeDevice, opts ...AudioOption) *AudioService {
	t.Helper()
	svc, err := NewAudioService(cfg, device, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("Failed to create audio service: %v", err)
	}
	return svc
}

func immediateRestoreConfig() entities.AudioConfig {
	cfg := entities.DefaultAudioConfig()
	cfg.VolumeRestorationDelay = 0
	return cfg
}

func TestNewAudioServiceRejectsInvalidConfig(t *testing.T) {
	cfg := entities.DefaultAudioConfig()
	cfg.EmergencyVolumeLevel = 1.5

	_, err := NewAudioService(cfg, &fakeDevice{}, zap.NewNop())
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewAudioServiceRejectsOverflowingDelay(t *testing.T) {
	cfg := entities.DefaultAudioConfig()
	cfg.VolumeRestorationDelay = 1 << 40

	_, err := NewAudioService(cfg, &fakeDevice{}, zap.NewNop())
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	device := &fakeDevice{}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), device)

	for i := 0; i < 3; i++ {
		if err := svc.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
	}

	if device.opens != 1 {
		t.Errorf("Expected device opened once, got %d", device.opens)
	}
}

func TestInitializeDeviceFailure(t *testing.T) {
	device := &fakeDevice{openErr: errors.New("no output device")}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), device)

	err := svc.Initialize(context.Background())
	if !errors.Is(err, domain.ErrInitialization) {
		t.Errorf("Expected ErrInitialization, got %v", err)
	}

	// a later attempt retries the device
	device.openErr = nil
	if err := svc.Initialize(context.Background()); err != nil {
		t.Errorf("Expected retry to succeed, got %v", err)
	}
}

func TestSetEmergencyVolume(t *testing.T) {
	device := &fakeDevice{}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), device)

	if err := svc.SetEmergencyVolume(context.Background()); err != nil {
		t.Fatalf("SetEmergencyVolume failed: %v", err)
	}

	if len(device.forced) != 1 || device.forced[0] != 1.0 {
		t.Errorf("Expected output forced to 1.0, got %v", device.forced)
	}
	if !svc.IsEmergencyVolumeActive() {
		t.Error("Expected emergency volume to be active")
	}
	if got := svc.GetStats().EmergencyVolumeActivations; got != 1 {
		t.Errorf("Expected 1 activation, got %d", got)
	}
}

func TestSetEmergencyVolumeOverrideDisabled(t *testing.T) {
	cfg := entities.DefaultAudioConfig()
	cfg.EmergencyVolumeOverride = false
	device := &fakeDevice{}
	svc := newTestAudioService(t, cfg, device)

	if err := svc.SetEmergencyVolume(context.Background()); err != nil {
		t.Fatalf("SetEmergencyVolume failed: %v", err)
	}

	if len(device.forced) != 0 {
		t.Errorf("Expected no device writes, got %v", device.forced)
	}
	if svc.IsEmergencyVolumeActive() {
		t.Error("Expected emergency volume to be inactive with override disabled")
	}
	if got := svc.GetStats().EmergencyVolumeActivations; got != 0 {
		t.Errorf("Expected no activations, got %d", got)
	}
}

func TestSetEmergencyVolumeWithoutSpeakerControl(t *testing.T) {
	cfg := entities.DefaultAudioConfig()
	cfg.EnableSpeakerVolumeControl = false
	device := &fakeDevice{}
	svc := newTestAudioService(t, cfg, device)

	if err := svc.SetEmergencyVolume(context.Background()); err != nil {
		t.Fatalf("SetEmergencyVolume failed: %v", err)
	}

	if len(device.forced) != 0 {
		t.Errorf("Expected no device writes, got %v", device.forced)
	}
	if got := svc.GetStats().EmergencyVolumeActivations; got != 1 {
		t.Errorf("Expected 1 activation, got %d", got)
	}
}

func TestSetEmergencyVolumeDeviceError(t *testing.T) {
	device := &fakeDevice{forceErr: errors.New("mixer busy")}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), device)

	err := svc.SetEmergencyVolume(context.Background())
	if !errors.Is(err, domain.ErrDevice) {
		t.Errorf("Expected ErrDevice, got %v", err)
	}
	if got := svc.GetStats().EmergencyVolumeActivations; got != 0 {
		t.Errorf("Expected no activations after failure, got %d", got)
	}
}

func TestRestoreNormalVolumeAfterDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := clock.NewMock()
	device := &fakeDevice{}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), device, WithClock(mock))

	done := make(chan error, 1)
	go func() {
		done <- svc.RestoreNormalVolume(context.Background())
	}()

	waitFor(t, svc.IsRestorationPending)
	if device.restoredCount() != 0 {
		t.Fatal("Expected no restoration before the delay elapsed")
	}

	if err := advanceUntilDone(t, mock, done); err != nil {
		t.Fatalf("RestoreNormalVolume failed: %v", err)
	}

	if device.restoredCount() != 1 || device.restored[0] != 0.5 {
		t.Errorf("Expected volume restored to 0.5, got %v", device.restored)
	}
	if got := svc.GetStats().VolumeRestorationEvents; got != 1 {
		t.Errorf("Expected 1 restoration event, got %d", got)
	}
	if svc.IsRestorationPending() {
		t.Error("Expected no pending restoration")
	}
}

func TestRestoreHonoursDelayAtCap(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := entities.DefaultAudioConfig()
	cfg.VolumeRestorationDelay = entities.MaxVolumeRestorationDelay

	mock := clock.NewMock()
	device := &fakeDevice{}
	svc := newTestAudioService(t, cfg, device, WithClock(mock))

	done := make(chan error, 1)
	go func() {
		done <- svc.RestoreNormalVolume(context.Background())
	}()

	waitFor(t, svc.IsRestorationPending)
	select {
	case err := <-done:
		t.Fatalf("Expected restoration to wait for the delay, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	var advanced time.Duration
	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("RestoreNormalVolume failed: %v", err)
			}
			if advanced < cfg.RestorationDelay() {
				t.Errorf("Expected restoration after %s, clock advanced %s", cfg.RestorationDelay(), advanced)
			}
			if device.restoredCount() != 1 {
				t.Errorf("Expected one restoration, got %d", device.restoredCount())
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for restoration")
		}
		mock.Add(time.Minute)
		advanced += time.Minute
		time.Sleep(time.Millisecond)
	}
}

func TestRestoreAbandonedWhenEmergencyStarts(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := clock.NewMock()
	device := &fakeDevice{}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), device, WithClock(mock))

	done := make(chan error, 1)
	go func() {
		done <- svc.RestoreNormalVolume(context.Background())
	}()
	waitFor(t, svc.IsRestorationPending)

	if err := svc.SetEmergencyVolume(context.Background()); err != nil {
		t.Fatalf("SetEmergencyVolume failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Expected abandoned restoration to return nil, got %v", err)
	}
	if device.restoredCount() != 0 {
		t.Errorf("Expected no restoration, got %v", device.restored)
	}
	if got := svc.GetStats().VolumeRestorationEvents; got != 0 {
		t.Errorf("Expected no restoration events, got %d", got)
	}
	if !svc.IsEmergencyVolumeActive() {
		t.Error("Expected emergency volume to stay active")
	}
}

func TestRestoreAbandonedWhenEmergencyEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := clock.NewMock()
	device := &fakeDevice{}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), device, WithClock(mock))

	if err := svc.SetEmergencyVolume(context.Background()); err != nil {
		t.Fatalf("SetEmergencyVolume failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.RestoreNormalVolume(context.Background())
	}()
	waitFor(t, svc.IsRestorationPending)

	svc.EndEmergency()

	if err := <-done; err != nil {
		t.Fatalf("Expected abandoned restoration to return nil, got %v", err)
	}
	if got := svc.GetStats().VolumeRestorationEvents; got != 0 {
		t.Errorf("Expected no restoration events, got %d", got)
	}
}

func TestRestoreSkippedWhileEmergencyActive(t *testing.T) {
	device := &fakeDevice{}
	svc := newTestAudioService(t, immediateRestoreConfig(), device)

	if err := svc.SetEmergencyVolume(context.Background()); err != nil {
		t.Fatalf("SetEmergencyVolume failed: %v", err)
	}
	if err := svc.RestoreNormalVolume(context.Background()); err != nil {
		t.Fatalf("RestoreNormalVolume failed: %v", err)
	}

	if device.restoredCount() != 0 {
		t.Errorf("Expected no restoration during an emergency, got %v", device.restored)
	}
}

func TestRestoreAfterEmergencyEnded(t *testing.T) {
	device := &fakeDevice{}
	svc := newTestAudioService(t, immediateRestoreConfig(), device)

	if err := svc.SetEmergencyVolume(context.Background()); err != nil {
		t.Fatalf("SetEmergencyVolume failed: %v", err)
	}
	svc.EndEmergency()

	if err := svc.RestoreNormalVolume(context.Background()); err != nil {
		t.Fatalf("RestoreNormalVolume failed: %v", err)
	}
	if device.restoredCount() != 1 {
		t.Errorf("Expected one restoration, got %d", device.restoredCount())
	}
	if svc.IsEmergencyVolumeActive() {
		t.Error("Expected emergency volume to be inactive")
	}
}

func TestRestoreHonoursContextCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := clock.NewMock()
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), &fakeDevice{}, WithClock(mock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.RestoreNormalVolume(ctx)
	}()
	waitFor(t, svc.IsRestorationPending)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestOptimizeInputVolume(t *testing.T) {
	device := &fakeDevice{}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), device)

	svc.OptimizeInputVolume(context.Background())

	if len(device.profiles) != 1 {
		t.Fatalf("Expected one microphone profile, got %d", len(device.profiles))
	}
	if !device.profiles[0].VoiceCapture || !device.profiles[0].NoiseSuppression {
		t.Errorf("Unexpected microphone profile: %+v", device.profiles[0])
	}

	// failures are swallowed
	device.gainErr = errors.New("unsupported")
	svc.OptimizeInputVolume(context.Background())
}

func TestNoiseFilteringUpdatesStats(t *testing.T) {
	pipeline := &fakePipeline{effectiveness: 0.8}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), &fakeDevice{}, WithAudioPipeline(pipeline))

	out := svc.ApplyNoiseFiltering(context.Background(), []byte{1, 2, 3, 4})
	if len(out) != 2 {
		t.Errorf("Expected filtered buffer of 2 bytes, got %d", len(out))
	}

	pipeline.effectiveness = 0.4
	svc.ApplyNoiseFiltering(context.Background(), []byte{1, 2})

	stats := svc.GetStats()
	if stats.TotalSamplesProcessed != 2 {
		t.Errorf("Expected 2 processed samples, got %d", stats.TotalSamplesProcessed)
	}
	if stats.NoiseFilterEffectiveness < 0.59 || stats.NoiseFilterEffectiveness > 0.61 {
		t.Errorf("Expected mean effectiveness 0.6, got %f", stats.NoiseFilterEffectiveness)
	}
	if stats.LastProcessing == nil {
		t.Error("Expected LastProcessing to be set")
	}
}

func TestNoiseFilteringFallsBackToPassThrough(t *testing.T) {
	pipeline := &fakePipeline{filterErr: errors.New("model not loaded")}
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), &fakeDevice{}, WithAudioPipeline(pipeline))

	in := []byte{9, 8, 7}
	out := svc.ApplyNoiseFiltering(context.Background(), in)
	if string(out) != string(in) {
		t.Errorf("Expected pass-through, got %v", out)
	}

	out[0] = 0
	if in[0] != 9 {
		t.Error("Expected output to be a copy of the input")
	}
}

func TestEnhanceAudioWithoutPipeline(t *testing.T) {
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), &fakeDevice{})

	out := svc.EnhanceAudio(context.Background(), []byte{1, 2, 3})
	if len(out) != 3 {
		t.Errorf("Expected pass-through of 3 bytes, got %d", len(out))
	}
	if got := svc.GetStats().TotalSamplesProcessed; got != 1 {
		t.Errorf("Expected 1 processed sample, got %d", got)
	}
}

func TestUpdateConfigRoundTrip(t *testing.T) {
	svc := newTestAudioService(t, entities.DefaultAudioConfig(), &fakeDevice{})

	cfg := entities.DefaultAudioConfig()
	cfg.SampleRate = 48000
	cfg.VolumeRestorationDelay = 5
	if err := svc.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if got := svc.GetConfig(); got != cfg {
		t.Errorf("Expected %+v, got %+v", cfg, got)
	}

	bad := cfg
	bad.BufferSize = 0
	if err := svc.UpdateConfig(bad); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if got := svc.GetConfig(); got != cfg {
		t.Error("Expected rejected update to leave config unchanged")
	}
}
