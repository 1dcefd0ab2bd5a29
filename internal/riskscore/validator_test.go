package riskscore

import (
	"errors"
	"math"
	"testing"

	"rwa-vault-lab/internal/domain"
)

func rawWith(scores map[string]float64) *RawAssessment {
	return &RawAssessment{DimensionScores: scores}
}

func allDims(legal, financial, operational, market, documentation float64) map[string]float64 {
	return map[string]float64{
		"legal":         legal,
		"financial":     financial,
		"operational":   operational,
		"market":        market,
		"documentation": documentation,
	}
}

func TestValidate_RecomputesAggregateAndGrade(t *testing.T) {
	// mean(90,85,80,70,60) = 77 -> B, regardless of what the service
	// self-reported.
	selfScore := 99.0
	raw := &RawAssessment{
		RiskGrade:       "A",
		RiskScore:       &selfScore,
		DimensionScores: allDims(90, 85, 80, 70, 60),
		KeyRisks:        []string{"tenant concentration"},
		MissingDocs:     []string{"insurance certificate"},
	}

	a, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if a.Aggregate != 77 {
		t.Errorf("aggregate = %d, want 77", a.Aggregate)
	}
	if a.Grade != domain.GradeB {
		t.Errorf("grade = %s, want B (self-reported A discarded)", a.Grade)
	}
	if len(a.KeyRisks) != 1 || a.KeyRisks[0] != "tenant concentration" {
		t.Errorf("key risks not passed through: %v", a.KeyRisks)
	}
	if len(a.MissingDocs) != 1 {
		t.Errorf("missing docs not passed through: %v", a.MissingDocs)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	raw := rawWith(allDims(81, 79, 80, 80, 80))
	first, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		a, err := Validate(raw)
		if err != nil {
			t.Fatalf("Validate run %d failed: %v", i, err)
		}
		if a.Aggregate != first.Aggregate || a.Grade != first.Grade {
			t.Fatalf("run %d: %d/%s differs from %d/%s", i, a.Aggregate, a.Grade, first.Aggregate, first.Grade)
		}
	}
}

func TestValidate_GradeBoundaries(t *testing.T) {
	cases := []struct {
		scores map[string]float64
		want   domain.RiskGrade
	}{
		{allDims(80, 80, 80, 80, 80), domain.GradeA},
		{allDims(79, 80, 80, 80, 80), domain.GradeA}, // 79.8 rounds to 80
		{allDims(79, 79, 79, 79, 79), domain.GradeB},
		{allDims(65, 65, 65, 65, 65), domain.GradeB},
		{allDims(64, 64, 64, 64, 64), domain.GradeC},
		{allDims(45, 45, 45, 45, 45), domain.GradeC},
		{allDims(44, 44, 44, 44, 44), domain.GradeD},
		{allDims(0, 0, 0, 0, 0), domain.GradeD},
	}

	for _, tc := range cases {
		a, err := Validate(rawWith(tc.scores))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if a.Grade != tc.want {
			t.Errorf("scores %v: grade = %s, want %s (aggregate %d)", tc.scores, a.Grade, tc.want, a.Aggregate)
		}
	}
}

// A sub-score the service failed to return is never defaulted to zero:
// partial defaulting would understate risk for the dimensions that did
// score. The submission fails instead.
func TestValidate_MissingDimensionFails(t *testing.T) {
	raw := rawWith(map[string]float64{
		"legal": 90, "financial": 85, "operational": 80, "market": 70,
	})
	_, err := Validate(raw)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("got %v, want ErrMalformedOutput", err)
	}
}

func TestValidate_RejectsOutOfRangeAndNonFinite(t *testing.T) {
	cases := []map[string]float64{
		allDims(101, 80, 80, 80, 80),
		allDims(-1, 80, 80, 80, 80),
		allDims(math.NaN(), 80, 80, 80, 80),
		allDims(math.Inf(1), 80, 80, 80, 80),
	}
	for i, scores := range cases {
		if _, err := Validate(rawWith(scores)); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("case %d: got %v, want ErrMalformedOutput", i, err)
		}
	}
}

func TestValidate_NilAssessment(t *testing.T) {
	if _, err := Validate(nil); !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("got %v, want ErrMalformedOutput", err)
	}
}

func TestYieldBpsForGrade(t *testing.T) {
	cases := []struct {
		grade domain.RiskGrade
		want  int64
	}{
		{domain.GradeA, 800},
		{domain.GradeB, 1000},
		{domain.GradeC, 1300},
		{domain.GradeD, 2000},
	}
	for _, tc := range cases {
		if got := YieldBpsForGrade(tc.grade); got != tc.want {
			t.Errorf("grade %s: %d bps, want %d", tc.grade, got, tc.want)
		}
	}
}
