package evidence

// ComputeGrade maps an aggregate score and issue counts to a letter grade.
// Any error forces F; score thresholds only apply when there are no errors.
func ComputeGrade(score float64, errs, warnings int) Grade {
	switch {
	case errs > 0:
		return GradeF
	case score >= 0.95 && warnings == 0:
		return GradeA
	case score >= 0.85 && warnings <= 2:
		return GradeB
	case score >= 0.70 && warnings <= 5:
		return GradeC
	case score >= 0.60:
		return GradeD
	default:
		return GradeF
	}
}
