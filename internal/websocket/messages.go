package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/solana-sos/emergency/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypePing            MessageType = "ping"
	MessageTypePong            MessageType = "pong"
	MessageTypeError           MessageType = "error"
	MessageTypeEvent           MessageType = "event"
	MessageTypeUserReady       MessageType = "user_ready"
	MessageTypeActionCompleted MessageType = "action_completed"
	MessageTypeDispatcherReady MessageType = "dispatcher_ready"
	MessageTypeAudioCommand    MessageType = "audio_command"
	MessageTypeCommandAck      MessageType = "command_ack"
)

// Audio commands sent to front-end devices
const (
	CommandSetVolume     = "set_volume"
	CommandRestoreVolume = "restore_volume"
	CommandOptimizeInput = "optimize_input"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// EventMessage carries a coordinator lifecycle event to observers
type EventMessage struct {
	BaseMessage
	Event entities.EmergencyEvent `json:"event"`
}

// SignalMessage carries a readiness signal from a responder or dispatcher.
// IncidentID is optional; when set it must match the current incident.
type SignalMessage struct {
	BaseMessage
	IncidentID string `json:"incident_id,omitempty"`
}

// AudioCommandMessage asks a front-end device to change its audio routing
type AudioCommandMessage struct {
	BaseMessage
	Command string                      `json:"command"`
	Level   *float32                    `json:"level,omitempty"`
	Profile *entities.MicrophoneProfile `json:"profile,omitempty"`
}

// CommandAckMessage is the device's answer to an AudioCommandMessage
type CommandAckMessage struct {
	BaseMessage
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case MessageTypeUserReady, MessageTypeActionCompleted, MessageTypeDispatcherReady:
		var msg SignalMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid %s message: %w", base.Type, err)
		}
		return &msg, nil

	case MessageTypeCommandAck:
		var msg CommandAckMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid command ack message: %w", err)
		}
		if msg.CommandID == "" {
			return nil, fmt.Errorf("command_id is required")
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func marshal(msg interface{}) []byte {
	b, _ := json.Marshal(msg)
	return b
}
