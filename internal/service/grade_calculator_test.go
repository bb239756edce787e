package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
)

func graded(assignmentType models.AssignmentType, score, total int) models.GradedSubmission {
	return models.GradedSubmission{AssignmentType: assignmentType, Score: intPtr(score), TotalPoints: total}
}

func TestComputePercentageSimpleAverage(t *testing.T) {
	result := ComputePercentage([]models.GradedSubmission{
		graded(models.AssignmentTypeHomework, 80, 100),
		graded(models.AssignmentTypeExam, 40, 50),
	}, nil)

	require.NotNil(t, result.Percentage)
	assert.Equal(t, 80.0, *result.Percentage)
	assert.Equal(t, MethodSimple, result.Method)
	assert.False(t, result.WeightFallback)
}

func TestComputePercentageWeighted(t *testing.T) {
	categories := []models.GradeCategory{
		{AssignmentType: models.AssignmentTypeHomework, Weight: 30},
		{AssignmentType: models.AssignmentTypeExam, Weight: 70},
	}
	result := ComputePercentage([]models.GradedSubmission{
		graded(models.AssignmentTypeHomework, 90, 100),
		graded(models.AssignmentTypeExam, 80, 100),
	}, categories)

	require.NotNil(t, result.Percentage)
	assert.InDelta(t, 83.0, *result.Percentage, 0.001)
	assert.Equal(t, MethodWeighted, result.Method)
}

func TestComputePercentageDropLowest(t *testing.T) {
	categories := []models.GradeCategory{{AssignmentType: models.AssignmentTypeHomework, Weight: 100, DropLowest: 1}}
	result := ComputePercentage([]models.GradedSubmission{
		graded(models.AssignmentTypeHomework, 90, 100),
		graded(models.AssignmentTypeHomework, 70, 100),
		graded(models.AssignmentTypeHomework, 80, 100),
	}, categories)

	require.NotNil(t, result.Percentage)
	assert.Equal(t, 85.0, *result.Percentage)
}

func TestComputePercentageKeepsScoresWhenDropWouldEmptyCategory(t *testing.T) {
	categories := []models.GradeCategory{{AssignmentType: models.AssignmentTypeHomework, Weight: 100, DropLowest: 2}}
	result := ComputePercentage([]models.GradedSubmission{
		graded(models.AssignmentTypeHomework, 60, 100),
		graded(models.AssignmentTypeHomework, 100, 100),
	}, categories)

	require.NotNil(t, result.Percentage)
	assert.Equal(t, 80.0, *result.Percentage)
}

func TestComputePercentageRenormalizesMissingCategories(t *testing.T) {
	categories := []models.GradeCategory{
		{AssignmentType: models.AssignmentTypeHomework, Weight: 40},
		{AssignmentType: models.AssignmentTypeExam, Weight: 60},
	}
	result := ComputePercentage([]models.GradedSubmission{graded(models.AssignmentTypeHomework, 90, 100)}, categories)

	require.NotNil(t, result.Percentage)
	assert.InDelta(t, 90.0, *result.Percentage, 0.001)
}

func TestComputePercentageFallsBackWhenWeightsUnbalanced(t *testing.T) {
	categories := []models.GradeCategory{
		{AssignmentType: models.AssignmentTypeHomework, Weight: 30},
		{AssignmentType: models.AssignmentTypeExam, Weight: 50},
	}
	result := ComputePercentage([]models.GradedSubmission{
		graded(models.AssignmentTypeHomework, 100, 100),
		graded(models.AssignmentTypeExam, 50, 100),
	}, categories)

	require.NotNil(t, result.Percentage)
	assert.Equal(t, 75.0, *result.Percentage)
	assert.Equal(t, MethodSimple, result.Method)
	assert.True(t, result.WeightFallback)
}

func TestComputePercentageNoData(t *testing.T) {
	categories := []models.GradeCategory{{AssignmentType: models.AssignmentTypeHomework, Weight: 100}}

	result := ComputePercentage(nil, categories)
	assert.Nil(t, result.Percentage)
	assert.Equal(t, MethodNoData, result.Method)

	result = ComputePercentage([]models.GradedSubmission{graded(models.AssignmentTypeExam, 50, 100)}, categories)
	assert.Nil(t, result.Percentage)

	result = ComputePercentage([]models.GradedSubmission{graded(models.AssignmentTypeHomework, 5, 0)}, nil)
	assert.Nil(t, result.Percentage)
}

func TestComputePercentageRoundsToTwoDecimals(t *testing.T) {
	result := ComputePercentage([]models.GradedSubmission{
		graded(models.AssignmentTypeHomework, 1, 3),
	}, nil)

	require.NotNil(t, result.Percentage)
	assert.Equal(t, 33.33, *result.Percentage)
}

func TestPlainCategoryAveragesIgnoreDropLowest(t *testing.T) {
	categories := []models.GradeCategory{
		{AssignmentType: models.AssignmentTypeHomework, Weight: 60, DropLowest: 1},
		{AssignmentType: models.AssignmentTypeExam, Weight: 40},
	}
	stats := plainCategoryAverages([]models.GradedSubmission{
		graded(models.AssignmentTypeHomework, 90, 100),
		graded(models.AssignmentTypeHomework, 60, 100),
	}, categories)

	require.Len(t, stats, 2)
	require.NotNil(t, stats[0].Average)
	assert.Equal(t, 75.0, *stats[0].Average)
	assert.Equal(t, 2, stats[0].Count)
	assert.Nil(t, stats[1].Average)
	assert.Zero(t, stats[1].Count)
}

func TestResolveLetterFallsBackWithoutScale(t *testing.T) {
	assert.Equal(t, "B", resolveLetter(nil, floatPtr(85)))
	assert.Equal(t, models.NoGrade, resolveLetter(nil, nil))

	scale := models.DefaultGradeScale("c1")
	scale.UsePlusMinus = true
	assert.Equal(t, "B+", resolveLetter(&scale, floatPtr(87)))
}
