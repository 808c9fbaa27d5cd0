package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
	"github.com/solana-sos/emergency/internal/auth"
	"github.com/solana-sos/emergency/internal/websocket"
	"github.com/solana-sos/emergency/usecase"
)

const (
	claimsKey        = "claims"
	defaultCallLimit = 50
	maxCallLimit     = 500

	// headroom on top of the restoration delay for the device round trip
	restoreTimeout = 30 * time.Second
)

// Services are the collaborators the HTTP surface exposes
type Services struct {
	Emergency *usecase.EmergencyService
	Records   repositories.CallRecordRepository
	Issuer    *auth.Issuer
	Hub       *websocket.Hub

	// Lifetime bounds work that outlives a request. Defaults to context.Background.
	Lifetime context.Context
	// Tasks tracks that work so shutdown can wait for it
	Tasks *sync.WaitGroup
}

type handler struct {
	emergency *usecase.EmergencyService
	audio     *usecase.AudioService
	records   repositories.CallRecordRepository
	issuer    *auth.Issuer
	hub       *websocket.Hub
	lifetime  context.Context
	tasks     *sync.WaitGroup
	logger    *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, services Services, logger *zap.Logger) {
	h := &handler{
		emergency: services.Emergency,
		audio:     services.Emergency.Audio(),
		records:   services.Records,
		issuer:    services.Issuer,
		hub:       services.Hub,
		lifetime:  services.Lifetime,
		tasks:     services.Tasks,
		logger:    logger,
	}
	if h.lifetime == nil {
		h.lifetime = context.Background()
	}
	if h.tasks == nil {
		h.tasks = &sync.WaitGroup{}
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "emergency-coordinator",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Device APIs
	v1.POST("/device/auth", h.deviceAuth)

	v1.GET("/categories", h.listCategories)

	// Incident lifecycle
	em := v1.Group("/emergency", h.requireToken)
	em.POST("/initiate", h.initiate)
	em.POST("/handoff", h.handoff)
	em.POST("/handoff/timing", h.coordinateTiming)
	em.POST("/handoff/dispatcher-ready", h.dispatcherReady)
	em.POST("/handoff/user-ready", h.userReady)
	em.POST("/handoff/action-completed", h.actionCompleted)
	em.POST("/audio-monitoring", h.audioMonitoring)
	em.GET("/instructions", h.instructions)
	em.GET("/status", h.status)
	em.POST("/end", h.end)
	em.POST("/cancel", h.cancel)
	em.POST("/location", h.shareLocation)
	em.POST("/call", h.callEmergencyNumber)

	// Audio override
	audio := v1.Group("/audio", h.requireToken)
	audio.GET("/config", h.getAudioConfig)
	audio.PUT("/config", h.updateAudioConfig)
	audio.GET("/stats", h.audioStats)
	audio.POST("/restore", h.restoreVolume)

	// Call history
	calls := v1.Group("/calls", h.requireToken)
	calls.GET("", h.listCalls)
	calls.GET("/:id", h.getCall)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.websocketWithAuth)
}

func (h *handler) deviceAuth(c echo.Context) error {
	var req DeviceAuthRequest

	// Bind and validate request
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind device auth request", zap.Error(err))
		return badRequest(c, "Invalid request format")
	}

	// Validate required fields
	if req.DeviceID == "" || req.SecretKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Device ID and secret key are required",
		})
	}

	token, expiresAt, err := h.issuer.AuthenticateDevice(req.DeviceID, req.SecretKey)
	if err != nil {
		h.logger.Warn("Device authentication failed",
			zap.String("device_id", req.DeviceID),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid device credentials",
		})
	}

	h.logger.Info("Device authenticated successfully", zap.String("device_id", req.DeviceID))

	return c.JSON(http.StatusOK, DeviceAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		DeviceID:  req.DeviceID,
	})
}

func (h *handler) listCategories(c echo.Context) error {
	categories := entities.AllCategories()
	resp := make([]CategoryResponse, 0, len(categories))
	for _, category := range categories {
		resp = append(resp, CategoryResponse{
			Category:           category,
			DisplayName:        category.DisplayName(),
			Description:        category.Description(),
			EscalationNumber:   category.EscalationNumber(),
			SpecializedRouting: category.SpecializedRouting(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) initiate(c echo.Context) error {
	var req InitiateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	if err := h.emergency.InitiateResponse(req.Category); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) handoff(c echo.Context) error {
	var req HandoffRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	err := h.emergency.InitiateSmartHandoffWithAssessment(c.Request().Context(), req.Category, req.Assessment)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) coordinateTiming(c echo.Context) error {
	h.emergency.CoordinateHandoffTiming()
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) dispatcherReady(c echo.Context) error {
	if claims := c.Get(claimsKey).(*auth.JWTClaims); claims.Role != auth.RoleDispatcher {
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only dispatchers may signal dispatcher readiness",
		})
	}
	h.emergency.SignalDispatcherReady()
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) userReady(c echo.Context) error {
	h.emergency.SignalUserReady()
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) actionCompleted(c echo.Context) error {
	h.emergency.SignalActionCompleted()
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) audioMonitoring(c echo.Context) error {
	h.emergency.EnableDispatcherAudioMonitoring()
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) instructions(c echo.Context) error {
	return c.JSON(http.StatusOK, InstructionsResponse{
		Category:     h.emergency.CurrentCategory(),
		Instructions: h.emergency.GetInstructions(),
	})
}

func (h *handler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) end(c echo.Context) error {
	h.emergency.EndResponse()
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) cancel(c echo.Context) error {
	h.emergency.CancelResponse()
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) shareLocation(c echo.Context) error {
	var req LocationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return badRequest(c, "Latitude and longitude are required")
	}
	location := entities.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := location.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.emergency.ShareLocation(c.Request().Context(), location.Latitude, location.Longitude); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, h.emergency.Snapshot())
}

func (h *handler) callEmergencyNumber(c echo.Context) error {
	var req CallRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	if err := h.emergency.CallEmergencyNumber(c.Request().Context(), req.Location); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) getAudioConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, h.audio.GetConfig())
}

func (h *handler) updateAudioConfig(c echo.Context) error {
	var config entities.AudioConfig
	if err := c.Bind(&config); err != nil {
		return badRequest(c, "Invalid request format")
	}

	if err := h.audio.UpdateConfig(config); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, h.audio.GetConfig())
}

func (h *handler) audioStats(c echo.Context) error {
	return c.JSON(http.StatusOK, AudioStatusResponse{
		Stats:                 h.audio.GetStats(),
		EmergencyVolumeActive: h.audio.IsEmergencyVolumeActive(),
		RestorationPending:    h.audio.IsRestorationPending(),
	})
}

// restoreVolume schedules a restoration and returns immediately. The
// restoration outlives the request but not the server.
func (h *handler) restoreVolume(c echo.Context) error {
	timeout := h.audio.GetConfig().RestorationDelay() + restoreTimeout

	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()

		ctx, cancel := context.WithTimeout(h.lifetime, timeout)
		defer cancel()
		if err := h.audio.RestoreNormalVolume(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				h.logger.Info("Volume restoration cancelled by shutdown")
				return
			}
			h.logger.Error("Volume restoration failed", zap.Error(err))
		}
	}()

	return c.NoContent(http.StatusAccepted)
}

func (h *handler) listCalls(c echo.Context) error {
	limit := defaultCallLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}
		limit = min(n, maxCallLimit)
	}

	calls, err := h.records.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	if calls == nil {
		calls = []*entities.EmergencyCallData{}
	}
	return c.JSON(http.StatusOK, CallListResponse{Calls: calls})
}

func (h *handler) getCall(c echo.Context) error {
	call, err := h.records.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, call)
}

// requireToken validates the bearer token and stores its claims on the context
func (h *handler) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, errResp := h.authenticate(c)
		if errResp != nil {
			return c.JSON(http.StatusUnauthorized, errResp)
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

func (h *handler) authenticate(c echo.Context) (*auth.JWTClaims, *ErrorResponse) {
	// Extract JWT token from Authorization header only
	token, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil, &ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		}
	}

	claims, err := h.issuer.ValidateToken(token)
	if err != nil {
		h.logger.Warn("Request rejected: invalid token", zap.Error(err))
		return nil, &ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		}
	}
	return claims, nil
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func (h *handler) websocketWithAuth(c echo.Context) error {
	claims, errResp := h.authenticate(c)
	if errResp != nil {
		h.logger.Warn("WebSocket connection rejected", zap.String("reason", errResp.Error))
		return c.JSON(http.StatusUnauthorized, errResp)
	}

	if claims.Role != auth.RoleDevice && claims.Role != auth.RoleDispatcher {
		h.logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only device and dispatcher tokens are allowed for WebSocket connections",
		})
	}

	if claims.DeviceID == "" {
		h.logger.Error("WebSocket connection rejected: missing client ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Client ID not found in token",
		})
	}

	h.logger.Info("WebSocket connection authenticated",
		zap.String("client_id", claims.DeviceID),
		zap.String("role", claims.Role))

	return websocket.HandleWebSocketWithAuth(h.hub, c, claims.DeviceID, claims.Role, h.logger)
}
