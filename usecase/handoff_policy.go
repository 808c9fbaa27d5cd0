package usecase

import "github.com/solana-sos/emergency/domain/entities"

type strategyRule struct {
	strategy  entities.HandoffStrategy
	rationale string
}

var strategyTable = map[entities.EmergencyCategory]strategyRule{
	entities.CategorySuicide: {
		strategy:  entities.HandoffImmediate,
		rationale: "immediate handoff to human specialist",
	},
	entities.CategoryDrugOverdose: {
		strategy:  entities.HandoffDispatcherReady,
		rationale: "coordinated handoff with harm reduction specialist",
	},
	entities.CategoryHypothermia: {
		strategy:  entities.HandoffNaturalBreak,
		rationale: "natural break handoff to avoid interrupting rewarming",
	},
	entities.CategoryUnconscious: {
		strategy:  entities.HandoffAfterAction,
		rationale: "after action handoff to maintain care continuity",
	},
	entities.CategoryChoking: {
		strategy:  entities.HandoffAfterAction,
		rationale: "after action handoff to maintain care continuity",
	},
}

var defaultStrategyRule = strategyRule{
	strategy:  entities.HandoffNaturalBreak,
	rationale: "standard emergency, natural break handoff",
}

// DetermineStrategy selects the handoff strategy for a dispatcher context.
// It is total over every category, known or not.
func DetermineStrategy(dispatcherContext entities.DispatcherContext) entities.HandoffStrategy {
	return ruleFor(dispatcherContext.Category).strategy
}

// StrategyRationale explains the strategy chosen for a category
func StrategyRationale(category entities.EmergencyCategory) string {
	return ruleFor(category).rationale
}

func ruleFor(category entities.EmergencyCategory) strategyRule {
	if rule, ok := strategyTable[category]; ok {
		return rule
	}
	return defaultStrategyRule
}
