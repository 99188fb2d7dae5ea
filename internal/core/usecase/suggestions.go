package usecase

import (
	"sort"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

const maxSuggestions = 3

// resolveSuggestions picks between the tool-provided hint and the local
// heuristics. A non-nil NextSteps wins even when it is empty: an empty
// slice is the tool explicitly saying no follow-ups apply.
func resolveSuggestions(hint *domain.ToolHint, fallback []domain.Suggestion) []domain.Suggestion {
	if hint != nil && hint.NextSteps != nil {
		return clampSuggestions(hint.NextSteps)
	}
	return clampSuggestions(fallback)
}

func clampSuggestions(in []domain.Suggestion) []domain.Suggestion {
	out := make([]domain.Suggestion, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

func priorityRank(p domain.SuggestionPriority) int {
	switch p {
	case domain.PriorityUrgent:
		return 0
	case domain.PriorityRecommended:
		return 1
	case domain.PrioritySuggested:
		return 2
	case domain.PriorityOptional:
		return 3
	default:
		return 4
	}
}

func fleetHeuristics(overview domain.FleetOverview) []domain.Suggestion {
	var out []domain.Suggestion
	if len(overview.Status.OfflineLoggerIDs) > 0 {
		out = append(out, domain.Suggestion{
			Action:   toolDiagnoseErrors,
			Reason:   "Some devices are offline and may need attention.",
			Priority: domain.PriorityUrgent,
			Params:   map[string]any{"logger_id": overview.Status.OfflineLoggerIDs[0]},
		})
	}
	out = append(out,
		domain.Suggestion{
			Action:   toolFinancialSavings,
			Reason:   "See how much the fleet has saved you recently.",
			Priority: domain.PrioritySuggested,
		},
		domain.Suggestion{
			Action:   toolCompareLoggers,
			Reason:   "Compare your devices to spot underperformers.",
			Priority: domain.PriorityOptional,
		},
	)
	return out
}
