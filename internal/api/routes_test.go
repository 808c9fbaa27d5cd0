package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/adapters"
	"github.com/solana-sos/emergency/adapters/audio"
	"github.com/solana-sos/emergency/adapters/dispatcher"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/internal/auth"
	"github.com/solana-sos/emergency/internal/websocket"
	"github.com/solana-sos/emergency/usecase"
)

const (
	testSecret       = "test-jwt-secret"
	testDeviceSecret = "test-device-secret"
)

type apiFixture struct {
	e           *echo.Echo
	emergency   *usecase.EmergencyService
	records     *adapters.MemoryCallRecordRepository
	device      *audio.LogDevice
	issuer      *auth.Issuer
	deviceToken string
	cancel      context.CancelFunc
	tasks       *sync.WaitGroup
}

// stop cancels background work and waits for it to drain
func (f *apiFixture) stop(t *testing.T) {
	t.Helper()
	f.cancel()

	drained := make(chan struct{})
	go func() {
		f.tasks.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("Background tasks did not drain")
	}
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()

	device := audio.NewLogDevice("test", logger)
	audioService, err := usecase.NewAudioService(entities.DefaultAudioConfig(), device, logger)
	require.NoError(t, err)

	records := adapters.NewMemoryCallRecordRepository()
	emergency := usecase.NewEmergencyService(audioService, dispatcher.NewLogTransport(logger), logger,
		usecase.WithCallRecords(records))
	t.Cleanup(emergency.Close)

	issuer := auth.NewIssuer(testSecret, testDeviceSecret)
	token, _, err := issuer.AuthenticateDevice("phone-1", testDeviceSecret)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	tasks := &sync.WaitGroup{}

	e := echo.New()
	InitRoutes(e, Services{
		Emergency: emergency,
		Records:   records,
		Issuer:    issuer,
		Hub:       websocket.NewHub(logger),
		Lifetime:  ctx,
		Tasks:     tasks,
	}, logger)

	f := &apiFixture{
		e:           e,
		emergency:   emergency,
		records:     records,
		device:      device,
		issuer:      issuer,
		deviceToken: token,
		cancel:      cancel,
		tasks:       tasks,
	}
	t.Cleanup(func() { f.stop(t) })
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestDeviceAuth(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body DeviceAuthRequest
		code int
	}{
		{"valid credentials", DeviceAuthRequest{DeviceID: "phone-2", SecretKey: testDeviceSecret}, http.StatusOK},
		{"wrong secret", DeviceAuthRequest{DeviceID: "phone-2", SecretKey: "nope"}, http.StatusUnauthorized},
		{"missing fields", DeviceAuthRequest{DeviceID: "phone-2"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/device/auth", "", tt.body)
			assert.Equal(t, tt.code, rec.Code)

			if tt.code == http.StatusOK {
				resp := decode[DeviceAuthResponse](t, rec)
				assert.Equal(t, "phone-2", resp.DeviceID)
				claims, err := f.issuer.ValidateToken(resp.Token)
				require.NoError(t, err)
				assert.Equal(t, auth.RoleDevice, claims.Role)
			}
		})
	}
}

func TestEmergencyRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/emergency/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/emergency/status", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decode[ErrorResponse](t, rec).Error)
}

func TestListCategories(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	categories := decode[[]CategoryResponse](t, rec)
	assert.Len(t, categories, len(entities.AllCategories()))
	for _, c := range categories {
		if c.Category == entities.CategorySuicide {
			assert.Equal(t, "988", c.EscalationNumber)
			assert.NotNil(t, c.SpecializedRouting)
		}
	}
}

func TestImmediateHandoffFlow(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/emergency/handoff", f.deviceToken, HandoffRequest{
		Category: entities.CategorySuicide,
		Assessment: usecase.Assessment{
			VictimStatus: "Conscious, talking",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snapshot := decode[usecase.IncidentSnapshot](t, rec)
	assert.Equal(t, entities.StatusActive, snapshot.Status)
	require.NotNil(t, snapshot.Handoff)
	assert.Equal(t, entities.HandoffImmediate, snapshot.Handoff.Strategy)
	require.NotNil(t, snapshot.Context)
	assert.Equal(t, "988", snapshot.Context.EmergencyNumber)
	assert.Equal(t, "Conscious, talking", snapshot.Context.VictimStatus)
	assert.Equal(t, float32(1.0), f.device.Volume())

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/handoff/timing", f.deviceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entities.StatusCompleted, decode[usecase.IncidentSnapshot](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/api/v1/emergency/instructions", f.deviceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	instructions := decode[InstructionsResponse](t, rec)
	assert.Equal(t, entities.CategorySuicide, instructions.Category)
	assert.Equal(t, entities.CategorySuicide.Instructions(), instructions.Instructions)

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/end", f.deviceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entities.StatusIdle, decode[usecase.IncidentSnapshot](t, rec).Status)

	f.emergency.Close()
	rec = f.do(t, http.MethodGet, "/api/v1/calls", f.deviceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	calls := decode[CallListResponse](t, rec).Calls
	require.Len(t, calls, 1)
	assert.True(t, calls[0].HandoffSuccessful)
	assert.Equal(t, entities.HandoffImmediate, calls[0].Strategy)

	rec = f.do(t, http.MethodGet, "/api/v1/calls/"+calls[0].ID, f.deviceToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmergencyErrors(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/emergency/initiate", f.deviceToken, InitiateRequest{Category: "Alien Abduction"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "context_build_failed", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/initiate", f.deviceToken, InitiateRequest{Category: entities.CategoryChoking})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/initiate", f.deviceToken, InitiateRequest{Category: entities.CategoryChoking})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_active", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodGet, "/api/v1/calls/missing", f.deviceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/calls?limit=zero", f.deviceToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatcherReadyRequiresDispatcherRole(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/emergency/handoff", f.deviceToken, HandoffRequest{Category: entities.CategoryHeartAttack})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/handoff/dispatcher-ready", f.deviceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	consoleToken, _, err := f.issuer.GenerateDispatcherToken("console-1")
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/handoff/dispatcher-ready", consoleToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decode[usecase.IncidentSnapshot](t, rec)
	require.NotNil(t, snapshot.Handoff)
	assert.True(t, snapshot.Handoff.DispatcherReady)
}

func TestShareLocation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/emergency/location", f.deviceToken, map[string]float64{"latitude": 40.7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/location", f.deviceToken, map[string]float64{"latitude": 91, "longitude": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/v1/emergency/initiate", f.deviceToken, InitiateRequest{Category: entities.CategoryStroke}).Code)

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/location", f.deviceToken, map[string]float64{"latitude": 40.7, "longitude": -74})
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decode[usecase.IncidentSnapshot](t, rec)
	require.NotNil(t, snapshot.Location)
	assert.Equal(t, 40.7, snapshot.Location.Latitude)

	rec = f.do(t, http.MethodPost, "/api/v1/emergency/call", f.deviceToken, CallRequest{Location: "Main St"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAudioConfigAndRestore(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/audio/config", f.deviceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	config := decode[entities.AudioConfig](t, rec)
	assert.Equal(t, entities.DefaultAudioConfig(), config)

	bad := config
	bad.EmergencyVolumeLevel = 2
	rec = f.do(t, http.MethodPut, "/api/v1/audio/config", f.deviceToken, bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	config.VolumeRestorationDelay = 0
	rec = f.do(t, http.MethodPut, "/api/v1/audio/config", f.deviceToken, config)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/audio/restore", f.deviceToken, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return f.emergency.Audio().GetStats().VolumeRestorationEvents == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, config.NormalVolumeLevel, f.device.Volume())

	rec = f.do(t, http.MethodGet, "/api/v1/audio/stats", f.deviceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[AudioStatusResponse](t, rec)
	assert.False(t, status.EmergencyVolumeActive)
}

func TestRestoreCancelledOnShutdown(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, 30*time.Second, f.emergency.Audio().GetConfig().RestorationDelay())

	rec := f.do(t, http.MethodPost, "/api/v1/audio/restore", f.deviceToken, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, f.emergency.Audio().IsRestorationPending, 2*time.Second, 10*time.Millisecond)

	f.stop(t)

	assert.False(t, f.emergency.Audio().IsRestorationPending())
	assert.Zero(t, f.emergency.Audio().GetStats().VolumeRestorationEvents)
}

func TestWebsocketRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
