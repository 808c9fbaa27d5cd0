package api

import (
	"time"

	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/usecase"
)

// DeviceAuthRequest represents the request payload for device authentication
type DeviceAuthRequest struct {
	DeviceID  string `json:"device_id" validate:"required"`
	SecretKey string `json:"secret_key" validate:"required"`
}

// DeviceAuthResponse represents the response payload for device authentication
type DeviceAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id"`
}

// InitiateRequest starts an incident without a handoff
type InitiateRequest struct {
	Category entities.EmergencyCategory `json:"category"`
}

// HandoffRequest starts a smart handoff. Assessment fields are optional.
type HandoffRequest struct {
	Category entities.EmergencyCategory `json:"category"`
	usecase.Assessment
}

// LocationRequest shares the responder's coordinates
type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CallRequest dials the escalation number directly
type CallRequest struct {
	Location string `json:"location"`
}

// InstructionsResponse lists the instructions to read to the responder
type InstructionsResponse struct {
	Category     entities.EmergencyCategory `json:"category,omitempty"`
	Instructions []string                   `json:"instructions"`
}

// CategoryResponse describes one emergency category
type CategoryResponse struct {
	Category           entities.EmergencyCategory `json:"category"`
	DisplayName        string                     `json:"display_name"`
	Description        string                     `json:"description"`
	EscalationNumber   string                     `json:"escalation_number"`
	SpecializedRouting *string                    `json:"specialized_routing,omitempty"`
}

// AudioStatusResponse reports the audio override state alongside the counters
type AudioStatusResponse struct {
	Stats                 entities.AudioStats `json:"stats"`
	EmergencyVolumeActive bool                `json:"emergency_volume_active"`
	RestorationPending    bool                `json:"restoration_pending"`
}

// CallListResponse wraps a page of call records
type CallListResponse struct {
	Calls []*entities.EmergencyCallData `json:"calls"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
