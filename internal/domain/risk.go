package domain

// RiskGrade is the four-bucket grade over the recomputed aggregate.
type RiskGrade string

const (
	GradeA RiskGrade = "A"
	GradeB RiskGrade = "B"
	GradeC RiskGrade = "C"
	GradeD RiskGrade = "D"
)

// IsValid checks if the grade is one of the four buckets.
func (g RiskGrade) IsValid() bool {
	return g == GradeA || g == GradeB || g == GradeC || g == GradeD
}

// SubScores are the five risk dimensions, each in [0,100].
// Higher means lower risk.
type SubScores struct {
	Legal         int64
	Financial     int64
	Operational   int64
	Market        int64
	Documentation int64
}

// RiskAssessment is the validated result of scoring one proposal's
// documents. Aggregate and Grade are always recomputed from SubScores;
// the narrative fields pass through from the scoring service unvalidated.
type RiskAssessment struct {
	SubScores   SubScores
	Aggregate   int64 // round(mean of the five sub-scores)
	Grade       RiskGrade
	KeyRisks    []string // display-only
	MissingDocs []string // display-only
}
