package store

import "github.com/quinticechen/alchemist-resume-sub001/internal/models"

// An analysis is mutated exactly once by the external workflow: the callback
// may arrive before the dispatch acknowledgement, so completion and failure
// are accepted from pending as well as processing.
var transitionMap = map[string][]string{
	models.AnalysisStatusProcessing: {models.AnalysisStatusPending},
	models.AnalysisStatusProcessed:  {models.AnalysisStatusPending, models.AnalysisStatusProcessing},
	models.AnalysisStatusFailed:     {models.AnalysisStatusPending, models.AnalysisStatusProcessing},
}

func ValidTransition(from, to string) bool {
	allowed, ok := transitionMap[to]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

// RefundsTrial reports whether settling an analysis at the given terminal
// status gives the trial credit back. Only a failed run that consumed a
// credit refunds it; subscribed users never consumed one.
func RefundsTrial(status string, usedTrial bool) bool {
	return status == models.AnalysisStatusFailed && usedTrial
}
