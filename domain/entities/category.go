package entities

// EmergencyCategory identifies the kind of emergency being handled
type EmergencyCategory string

const (
	CategoryDrowning          EmergencyCategory = "drowning"
	CategoryHeartAttack       EmergencyCategory = "heart_attack"
	CategoryStroke            EmergencyCategory = "stroke"
	CategoryChoking           EmergencyCategory = "choking"
	CategoryBleeding          EmergencyCategory = "bleeding"
	CategoryUnconscious       EmergencyCategory = "unconscious"
	CategorySeizure           EmergencyCategory = "seizure"
	CategoryPoisoning         EmergencyCategory = "poisoning"
	CategorySevereBurns       EmergencyCategory = "severe_burns"
	CategoryDiabeticEmergency EmergencyCategory = "diabetic_emergency"
	CategoryAllergicReaction  EmergencyCategory = "allergic_reaction"
	CategoryTrauma            EmergencyCategory = "trauma"
	CategorySuicide           EmergencyCategory = "suicide"
	CategoryDrugOverdose      EmergencyCategory = "drug_overdose"
	CategoryHypothermia       EmergencyCategory = "hypothermia"
)

const (
	// EmergencyNumber is the general emergency line
	EmergencyNumber = "911"
	// CrisisLineNumber is the suicide and crisis lifeline
	CrisisLineNumber = "988"
)

// categoryPolicy is one row of the taxonomy table
type categoryPolicy struct {
	displayName  string
	description  string
	number       string
	routing      string
	instructions []string
}

var genericInstructions = []string{
	"Stay calm",
	"Call 911",
	"Follow instructions",
}

// categoryOrder keeps AllCategories stable.
var categoryOrder = []EmergencyCategory{
	CategoryDrowning,
	CategoryHeartAttack,
	CategoryStroke,
	CategoryChoking,
	CategoryBleeding,
	CategoryUnconscious,
	CategorySeizure,
	CategoryPoisoning,
	CategorySevereBurns,
	CategoryDiabeticEmergency,
	CategoryAllergicReaction,
	CategoryTrauma,
	CategorySuicide,
	CategoryDrugOverdose,
	CategoryHypothermia,
}

var taxonomy = map[EmergencyCategory]categoryPolicy{
	CategoryDrowning: {
		displayName: "Drowning",
		description: "Water-related emergency requiring immediate rescue",
		number:      EmergencyNumber,
	},
	CategoryHeartAttack: {
		displayName: "Heart Attack",
		description: "Cardiac emergency requiring immediate medical attention",
		number:      EmergencyNumber,
	},
	CategoryStroke: {
		displayName: "Stroke",
		description: "Neurological emergency requiring immediate medical attention",
		number:      EmergencyNumber,
	},
	CategoryChoking: {
		displayName: "Choking",
		description: "Airway obstruction requiring immediate intervention",
		number:      EmergencyNumber,
	},
	CategoryBleeding: {
		displayName: "Bleeding",
		description: "Blood loss requiring immediate control",
		number:      EmergencyNumber,
	},
	CategoryUnconscious: {
		displayName: "Unconscious",
		description: "Loss of consciousness requiring immediate assessment",
		number:      EmergencyNumber,
	},
	CategorySeizure: {
		displayName: "Seizure",
		description: "Neurological episode requiring immediate safety measures",
		number:      EmergencyNumber,
	},
	CategoryPoisoning: {
		displayName: "Poisoning",
		description: "Toxic substance exposure requiring immediate treatment",
		number:      EmergencyNumber,
	},
	CategorySevereBurns: {
		displayName: "Severe Burns",
		description: "Thermal injury requiring immediate cooling and care",
		number:      EmergencyNumber,
	},
	CategoryDiabeticEmergency: {
		displayName: "Diabetic Emergency",
		description: "Blood sugar emergency requiring immediate intervention",
		number:      EmergencyNumber,
	},
	CategoryAllergicReaction: {
		displayName: "Allergic Reaction",
		description: "Severe allergic response requiring immediate treatment",
		number:      EmergencyNumber,
	},
	CategoryTrauma: {
		displayName: "Trauma",
		description: "Physical injury requiring immediate assessment and care",
		number:      EmergencyNumber,
	},
	CategorySuicide: {
		displayName: "Suicide Prevention",
		description: "Mental health crisis requiring immediate human connection and support",
		number:      CrisisLineNumber,
		routing:     "Suicide Prevention Hotline - Immediate human connection",
		instructions: []string{
			"Stay with the person",
			"Call 988 immediately",
			"Remove any dangerous objects",
			"Listen without judgment",
			"Connect to human specialist",
		},
	},
	CategoryDrugOverdose: {
		displayName: "Drug Overdose",
		description: "Substance overdose requiring harm reduction approach and medical intervention",
		number:      EmergencyNumber,
		routing:     "Harm Reduction Specialist - Non-judgmental approach",
		instructions: []string{
			"Check for breathing",
			"Call 911 immediately",
			"Administer naloxone if available",
			"Monitor vital signs",
			"Connect to harm reduction specialist",
		},
	},
	CategoryHypothermia: {
		displayName: "Hypothermia",
		description: "Cold exposure requiring gradual rewarming and specialized care",
		number:      EmergencyNumber,
		routing:     "Cold Weather Emergency - Gradual rewarming protocols",
		instructions: []string{
			"Move to warm location",
			"Remove wet clothing",
			"Gradual rewarming only",
			"Monitor consciousness",
			"Call 911 for severe cases",
		},
	},
}

// AllCategories returns every known category in a stable order
func AllCategories() []EmergencyCategory {
	out := make([]EmergencyCategory, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// Valid reports whether the category is known to the taxonomy
func (c EmergencyCategory) Valid() bool {
	_, ok := taxonomy[c]
	return ok
}

// DisplayName returns a human readable name for the category
func (c EmergencyCategory) DisplayName() string {
	if p, ok := taxonomy[c]; ok {
		return p.displayName
	}
	return string(c)
}

// Description returns a one sentence description of the category
func (c EmergencyCategory) Description() string {
	return taxonomy[c].description
}

// EscalationNumber returns the number to dial for the category.
// Only suicide prevention routes to 988.
func (c EmergencyCategory) EscalationNumber() string {
	if p, ok := taxonomy[c]; ok && p.number != "" {
		return p.number
	}
	return EmergencyNumber
}

// SpecializedRouting returns the routing hint for the category, or nil
func (c EmergencyCategory) SpecializedRouting() *string {
	p, ok := taxonomy[c]
	if !ok || p.routing == "" {
		return nil
	}
	routing := p.routing
	return &routing
}

// Instructions returns the canned instruction list for the category.
// Categories without a specific list, including unknown ones, get the
// generic fallback.
func (c EmergencyCategory) Instructions() []string {
	p, ok := taxonomy[c]
	if !ok || len(p.instructions) == 0 {
		return GenericInstructions()
	}
	out := make([]string, len(p.instructions))
	copy(out, p.instructions)
	return out
}

// GenericInstructions returns the fallback instruction list
func GenericInstructions() []string {
	out := make([]string, len(genericInstructions))
	copy(out, genericInstructions)
	return out
}
