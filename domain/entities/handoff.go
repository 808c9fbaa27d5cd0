package entities

import (
	"fmt"
	"strings"
	"time"
)

// HandoffStrategy decides when primary interaction moves to the dispatcher
type HandoffStrategy string

const (
	// HandoffImmediate hands off as soon as the dispatcher is reached
	HandoffImmediate HandoffStrategy = "immediate"
	// HandoffAfterAction waits for the current lifesaving action to complete
	HandoffAfterAction HandoffStrategy = "after_action"
	// HandoffNaturalBreak waits for a natural break in the care sequence
	HandoffNaturalBreak HandoffStrategy = "natural_break"
	// HandoffDispatcherReady waits for the dispatcher to signal readiness
	HandoffDispatcherReady HandoffStrategy = "dispatcher_ready"
	// HandoffUserReady waits for the responder to signal readiness
	HandoffUserReady HandoffStrategy = "user_ready"
)

// EmergencyStatus represents the coordinator state
type EmergencyStatus string

const (
	StatusIdle      EmergencyStatus = "idle"
	StatusActive    EmergencyStatus = "active"
	StatusCompleted EmergencyStatus = "completed"
	StatusCancelled EmergencyStatus = "cancelled"
	StatusError     EmergencyStatus = "error"
)

// Terminal reports whether the status can only be left through EndResponse
func (s EmergencyStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// DispatcherContext is the structured summary handed to a dispatcher
type DispatcherContext struct {
	Category            EmergencyCategory `json:"category" bson:"category"`
	CurrentActions      []string          `json:"current_actions" bson:"current_actions"`
	VictimStatus        string            `json:"victim_status" bson:"victim_status"`
	ResponderCapability string            `json:"responder_capability" bson:"responder_capability"`
	LocationDetails     string            `json:"location_details" bson:"location_details"`
	AudioFeedEnabled    bool              `json:"audio_feed_enabled" bson:"audio_feed_enabled"`
	EmergencyNumber     string            `json:"emergency_number" bson:"emergency_number"`
	SpecializedRouting  *string           `json:"specialized_routing,omitempty" bson:"specialized_routing,omitempty"`
}

// Summary renders the context as a single line for the handoff record
func (c DispatcherContext) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s emergency via %s", c.Category.DisplayName(), c.EmergencyNumber)
	if c.SpecializedRouting != nil {
		fmt.Fprintf(&b, " (%s)", *c.SpecializedRouting)
	}
	if len(c.CurrentActions) > 0 {
		fmt.Fprintf(&b, "; actions: %s", strings.Join(c.CurrentActions, ", "))
	}
	if c.VictimStatus != "" {
		fmt.Fprintf(&b, "; victim: %s", c.VictimStatus)
	}
	if c.ResponderCapability != "" {
		fmt.Fprintf(&b, "; responder: %s", c.ResponderCapability)
	}
	if c.LocationDetails != "" {
		fmt.Fprintf(&b, "; location: %s", c.LocationDetails)
	}
	return b.String()
}

// Clone returns a deep copy safe to hand to other goroutines
func (c DispatcherContext) Clone() DispatcherContext {
	out := c
	if c.CurrentActions != nil {
		out.CurrentActions = append([]string(nil), c.CurrentActions...)
	}
	if c.SpecializedRouting != nil {
		routing := *c.SpecializedRouting
		out.SpecializedRouting = &routing
	}
	return out
}

// EmergencyHandoff tracks the coordination of one handoff
type EmergencyHandoff struct {
	IncidentID                  string          `json:"incident_id"`
	DispatcherConnected         bool            `json:"dispatcher_connected"`
	DispatcherReady             bool            `json:"dispatcher_ready"`
	UserReadyForHandoff         bool            `json:"user_ready_for_handoff"`
	LifesavingActionsInProgress bool            `json:"lifesaving_actions_in_progress"`
	HandoffDelay                time.Duration   `json:"handoff_delay"`
	ContextSummary              string          `json:"context_summary"`
	Strategy                    HandoffStrategy `json:"handoff_strategy"`
	InitiatedAt                 time.Time       `json:"handoff_initiated"`
}

// Ready reports whether the readiness signals satisfy the strategy
func (h *EmergencyHandoff) Ready() bool {
	switch h.Strategy {
	case HandoffImmediate:
		return h.UserReadyForHandoff
	case HandoffAfterAction:
		return h.UserReadyForHandoff && !h.LifesavingActionsInProgress
	case HandoffDispatcherReady:
		return h.DispatcherReady
	case HandoffUserReady:
		return h.UserReadyForHandoff
	default:
		return h.DispatcherReady || h.UserReadyForHandoff
	}
}

// Coordinates is a GPS position shared with emergency services
type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// Validate checks the coordinates are on the globe
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f", c.Longitude)
	}
	return nil
}

// EventType names a coordinator lifecycle event
type EventType string

const (
	EventResponseInitiated  EventType = "response_initiated"
	EventHandoffInitiated   EventType = "handoff_initiated"
	EventHandoffReady       EventType = "handoff_ready"
	EventHandoffFailed      EventType = "handoff_failed"
	EventAudioMonitoring    EventType = "audio_monitoring_enabled"
	EventResponseEnded      EventType = "response_ended"
	EventResponseCancelled  EventType = "response_cancelled"
	EventLocationShared     EventType = "location_shared"
	EventTimingCoordinating EventType = "timing_coordinating"
)

// EmergencyEvent is published to observers such as connected front ends
type EmergencyEvent struct {
	Type       EventType         `json:"type"`
	IncidentID string            `json:"incident_id,omitempty"`
	Category   EmergencyCategory `json:"category,omitempty"`
	Status     EmergencyStatus   `json:"status"`
	Strategy   HandoffStrategy   `json:"strategy,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
