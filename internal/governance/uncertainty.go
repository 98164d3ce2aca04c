package governance

import (
	"fmt"
	"math"

	"github.com/gap-kernel/gap/internal/model"
)

// buildUncertainty synthesizes the UncertaintyDeclaration required on every
// decision, before the decision branches into REJECTED/ESCALATE/APPROVED.
func buildUncertainty(p model.StrategyProposal, entities map[string]model.Entity, activeConstraints []model.Constraint, softViolations []string) model.UncertaintyDeclaration {
	var assumptions, watch, knownUnknowns []string
	var evidence []model.EvidenceEntry

	confidences := make([]float64, 0, len(p.Actions))
	seen := map[string]struct{}{}
	for _, a := range p.Actions {
		if _, dup := seen[a.Target]; dup {
			continue
		}
		seen[a.Target] = struct{}{}
		e, ok := entities[a.Target]
		if !ok {
			knownUnknowns = append(knownUnknowns, fmt.Sprintf("no entity record for target %s", a.Target))
			continue
		}
		evidence = append(evidence, model.EvidenceEntry{
			EntityID:    e.EntityID,
			Source:      e.Source,
			LastUpdated: e.LastUpdated,
		})
		if e.Confidence < 1.0 {
			assumptions = append(assumptions, fmt.Sprintf("Entity %s data confidence is %.2f", e.EntityID, e.Confidence))
			watch = append(watch, fmt.Sprintf("Entity %s confidence may change", e.EntityID))
			confidences = append(confidences, e.Confidence)
		} else {
			confidences = append(confidences, e.Confidence)
		}
	}

	if len(activeConstraints) == 0 {
		knownUnknowns = append(knownUnknowns, "policy may be incomplete: no active constraints")
	}
	if len(softViolations) > 0 {
		watch = append(watch, "soft constraints were violated and should be monitored")
	}

	avgConfidence := 0.5
	if len(confidences) > 0 {
		sum := 0.0
		for _, c := range confidences {
			sum += c
		}
		avgConfidence = sum / float64(len(confidences))
	}

	confidence := avgConfidence
	if len(softViolations) > 0 {
		confidence *= 0.9
	}
	if len(knownUnknowns) > 0 {
		confidence *= 0.8
	}
	confidence = math.Max(0, math.Min(1, confidence))
	confidence = math.Round(confidence*100) / 100

	return model.UncertaintyDeclaration{
		Assumptions:     assumptions,
		WatchConditions: watch,
		EvidenceBasis:   evidence,
		KnownUnknowns:   knownUnknowns,
		ConfidenceLevel: confidence,
	}
}
