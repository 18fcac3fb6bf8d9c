package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeGrade(t *testing.T) {
	cases := []struct {
		score    float64
		errs     int
		warnings int
		want     Grade
	}{
		{1.0, 1, 0, GradeF},
		{0.99, 3, 10, GradeF},
		{0.95, 0, 0, GradeA},
		{0.9499, 0, 0, GradeB},
		{0.97, 0, 1, GradeB},
		{0.85, 0, 2, GradeB},
		{0.90, 0, 3, GradeC},
		{0.70, 0, 5, GradeC},
		{0.80, 0, 6, GradeD},
		{0.60, 0, 0, GradeD},
		{0.5999, 0, 0, GradeF},
		{0.0, 0, 0, GradeF},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ComputeGrade(tc.score, tc.errs, tc.warnings),
			"score=%v errors=%d warnings=%d", tc.score, tc.errs, tc.warnings)
	}
}

func TestComputeGradeErrorsAlwaysFail(t *testing.T) {
	for _, warnings := range []int{0, 1, 5, 20} {
		for _, score := range []float64{0, 0.6, 0.85, 0.95, 1} {
			clean := ComputeGrade(score, 0, warnings)
			assert.Equal(t, GradeF, ComputeGrade(score, 1, warnings))
			assert.GreaterOrEqual(t, string(GradeF), string(clean))
		}
	}
}
