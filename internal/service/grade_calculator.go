package service

import (
	"math"
	"sort"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
)

// CalculationMethod names the averaging strategy used for a course grade.
type CalculationMethod string

const (
	MethodNoData   CalculationMethod = "no_data"
	MethodSimple   CalculationMethod = "simple"
	MethodWeighted CalculationMethod = "weighted"
)

const weightTolerance = 0.01

// GradeCalculation is the outcome of averaging a student's graded work.
type GradeCalculation struct {
	Percentage *float64
	Method     CalculationMethod
	// WeightFallback is set when categories exist but their weights do not sum to 100.
	WeightFallback bool
}

func roundPercentage(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// ComputePercentage derives a course percentage from graded submissions.
// Without categories, or with weights that do not total 100, every graded
// submission is averaged equally. Otherwise categories are averaged after
// dropping their lowest scores, weighted, and rescaled over the categories
// that actually have work so a missing category does not cap the grade.
func ComputePercentage(submissions []models.GradedSubmission, categories []models.GradeCategory) GradeCalculation {
	if len(categories) == 0 {
		return simpleAverage(submissions)
	}

	var totalWeight float64
	for _, category := range categories {
		totalWeight += category.Weight
	}
	if math.Abs(totalWeight-100) > weightTolerance {
		result := simpleAverage(submissions)
		result.WeightFallback = true
		return result
	}

	byType := make(map[models.AssignmentType][]float64)
	for _, submission := range submissions {
		if pct, ok := submission.Percentage(); ok {
			byType[submission.AssignmentType] = append(byType[submission.AssignmentType], pct)
		}
	}

	var weightedSum, weightApplied float64
	for _, category := range categories {
		scores := byType[category.AssignmentType]
		if len(scores) == 0 {
			continue
		}
		weightedSum += categoryAverage(scores, category.DropLowest) * (category.Weight / 100)
		weightApplied += category.Weight
	}

	if weightApplied <= 0 {
		return GradeCalculation{Method: MethodNoData}
	}
	pct := roundPercentage(weightedSum * (100 / weightApplied))
	return GradeCalculation{Percentage: &pct, Method: MethodWeighted}
}

func simpleAverage(submissions []models.GradedSubmission) GradeCalculation {
	var total float64
	var count int
	for _, submission := range submissions {
		if pct, ok := submission.Percentage(); ok {
			total += pct
			count++
		}
	}
	if count == 0 {
		return GradeCalculation{Method: MethodNoData}
	}
	pct := roundPercentage(total / float64(count))
	return GradeCalculation{Percentage: &pct, Method: MethodSimple}
}

// categoryAverage drops the lowest scores only when more would remain.
func categoryAverage(scores []float64, dropLowest int) float64 {
	sorted := append([]float64(nil), scores...)
	if dropLowest > 0 && len(sorted) > dropLowest {
		sort.Float64s(sorted)
		sorted = sorted[dropLowest:]
	}
	var sum float64
	for _, score := range sorted {
		sum += score
	}
	return sum / float64(len(sorted))
}

// plainCategoryAverages reports unweighted per-category averages without
// drop-lowest, as shown on the student grade report.
func plainCategoryAverages(submissions []models.GradedSubmission, categories []models.GradeCategory) []models.CategoryAverage {
	result := make([]models.CategoryAverage, 0, len(categories))
	for _, category := range categories {
		var sum float64
		var count int
		for _, submission := range submissions {
			if submission.AssignmentType != category.AssignmentType {
				continue
			}
			if pct, ok := submission.Percentage(); ok {
				sum += pct
				count++
			}
		}
		stat := models.CategoryAverage{Category: category, Count: count}
		if count > 0 {
			avg := roundPercentage(sum / float64(count))
			stat.Average = &avg
		}
		result = append(result, stat)
	}
	return result
}

// resolveLetter uses the course scale when configured and the fixed ladder otherwise.
func resolveLetter(scale *models.GradeScale, percentage *float64) string {
	if scale == nil {
		return models.FallbackLetterGrade(percentage)
	}
	return scale.LetterGrade(percentage)
}

func samePercentage(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < 0.005
}
