package entities

import (
	"errors"
	"time"
)

// EmergencyCallData is the record kept for every finished incident
type EmergencyCallData struct {
	ID                string            `json:"id" bson:"_id"`
	IncidentID        string            `json:"incident_id" bson:"incident_id"`
	Category          EmergencyCategory `json:"category" bson:"category"`
	Timestamp         time.Time         `json:"timestamp" bson:"timestamp"`
	Location          *Coordinates      `json:"location,omitempty" bson:"location,omitempty"`
	Duration          time.Duration     `json:"duration" bson:"duration"`
	HandoffSuccessful bool              `json:"handoff_successful" bson:"handoff_successful"`
	Strategy          HandoffStrategy   `json:"handoff_strategy,omitempty" bson:"handoff_strategy,omitempty"`
	ContextProvided   bool              `json:"context_provided" bson:"context_provided"`
	FinalStatus       EmergencyStatus   `json:"final_status" bson:"final_status"`
}

// Validate validates the call record
func (d *EmergencyCallData) Validate() error {
	if d.Category == "" {
		return errors.New("category is required")
	}
	if d.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if d.Duration < 0 {
		return errors.New("duration cannot be negative")
	}
	if d.Location != nil {
		if err := d.Location.Validate(); err != nil {
			return err
		}
	}
	return nil
}
