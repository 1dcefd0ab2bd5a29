package riskscore

import (
	"errors"
	"fmt"
	"math"

	"rwa-vault-lab/internal/domain"
)

// ErrMalformedOutput is returned when the scoring service's output is
// missing sub-scores or carries non-numeric fields. The submission
// fails; sub-scores are never defaulted to zero, which would understate
// risk for the dimensions that did score.
var ErrMalformedOutput = errors.New("malformed scoring service output")

// Grade thresholds over the recomputed aggregate.
const (
	gradeAMin = 80
	gradeBMin = 65
	gradeCMin = 45
)

// dimensions are the required sub-score keys in the service output.
var dimensions = []string{"legal", "financial", "operational", "market", "documentation"}

// Validate recomputes the aggregate and grade from the five sub-scores,
// discarding whatever the service reported for those two fields. The
// narrative fields pass through unvalidated.
func Validate(raw *RawAssessment) (*domain.RiskAssessment, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil assessment", ErrMalformedOutput)
	}

	scores := make(map[string]int64, len(dimensions))
	var sum float64
	for _, dim := range dimensions {
		v, ok := raw.DimensionScores[dim]
		if !ok {
			return nil, fmt.Errorf("%w: missing sub-score %q", ErrMalformedOutput, dim)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
			return nil, fmt.Errorf("%w: sub-score %q out of range: %v", ErrMalformedOutput, dim, v)
		}
		scores[dim] = int64(math.Round(v))
		sum += v
	}

	aggregate := int64(math.Round(sum / float64(len(dimensions))))

	return &domain.RiskAssessment{
		SubScores: domain.SubScores{
			Legal:         scores["legal"],
			Financial:     scores["financial"],
			Operational:   scores["operational"],
			Market:        scores["market"],
			Documentation: scores["documentation"],
		},
		Aggregate:   aggregate,
		Grade:       GradeForScore(aggregate),
		KeyRisks:    raw.KeyRisks,
		MissingDocs: raw.MissingDocs,
	}, nil
}

// GradeForScore maps an aggregate to the fixed four-bucket grade.
func GradeForScore(score int64) domain.RiskGrade {
	switch {
	case score >= gradeAMin:
		return domain.GradeA
	case score >= gradeBMin:
		return domain.GradeB
	case score >= gradeCMin:
		return domain.GradeC
	default:
		return domain.GradeD
	}
}

// YieldBpsForGrade maps a grade to the fixed yield rate in basis
// points: 5% base plus a per-grade risk premium.
func YieldBpsForGrade(grade domain.RiskGrade) int64 {
	const baseBps = 500
	switch grade {
	case domain.GradeA:
		return baseBps + 300
	case domain.GradeB:
		return baseBps + 500
	case domain.GradeC:
		return baseBps + 800
	default:
		return baseBps + 1500
	}
}
