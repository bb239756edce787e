package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type gradeConfigRepository interface {
	ListCategories(ctx context.Context, courseID string) ([]models.GradeCategory, error)
	FindCategory(ctx context.Context, id string) (*models.GradeCategory, error)
	CategoryExists(ctx context.Context, courseID string, assignmentType models.AssignmentType, excludeID string) (bool, error)
	CreateCategory(ctx context.Context, category *models.GradeCategory) error
	UpdateCategory(ctx context.Context, category *models.GradeCategory) error
	DeleteCategory(ctx context.Context, id string) error
	FindScale(ctx context.Context, courseID string) (*models.GradeScale, error)
	UpsertScale(ctx context.Context, scale *models.GradeScale) error
}

// GradeCategoryRequest captures create and update payloads for categories.
type GradeCategoryRequest struct {
	Name           string                `json:"name" validate:"required,max=100"`
	AssignmentType models.AssignmentType `json:"assignment_type" validate:"required"`
	Weight         float64               `json:"weight" validate:"gte=0,lte=100"`
	DropLowest     int                   `json:"drop_lowest" validate:"gte=0"`
}

// GradeScaleRequest captures the scale payload.
type GradeScaleRequest struct {
	AMin         float64 `json:"a_min" validate:"gte=0,lte=100"`
	BMin         float64 `json:"b_min" validate:"gte=0,lte=100"`
	CMin         float64 `json:"c_min" validate:"gte=0,lte=100"`
	DMin         float64 `json:"d_min" validate:"gte=0,lte=100"`
	UsePlusMinus bool    `json:"use_plus_minus"`
}

// CategoryList is the category listing with the summed weight.
type CategoryList struct {
	Categories  []models.GradeCategory `json:"categories"`
	TotalWeight float64                `json:"total_weight"`
	Balanced    bool                   `json:"balanced"`
}

// GradeConfigService manages a course's grade scale and categories.
type GradeConfigService struct {
	repo      gradeConfigRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeConfigService constructs service.
func NewGradeConfigService(repo gradeConfigRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *GradeConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeConfigService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// GetScale returns the course scale, or the default scale when none is stored.
func (s *GradeConfigService) GetScale(ctx context.Context, courseID string) (*models.GradeScale, error) {
	scale, err := s.repo.FindScale(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			def := models.DefaultGradeScale(courseID)
			return &def, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade scale")
	}
	return scale, nil
}

// UpsertScale stores the course scale after checking threshold ordering.
func (s *GradeConfigService) UpsertScale(ctx context.Context, courseID string, req GradeScaleRequest) (*models.GradeScale, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade scale payload")
	}
	scale := &models.GradeScale{
		CourseID:     courseID,
		AMin:         req.AMin,
		BMin:         req.BMin,
		CMin:         req.CMin,
		DMin:         req.DMin,
		UsePlusMinus: req.UsePlusMinus,
	}
	if !scale.Ordered() {
		return nil, appErrors.Clone(appErrors.ErrInvalidScale, "thresholds must satisfy 0 <= d_min < c_min < b_min < a_min <= 100")
	}
	if err := s.repo.UpsertScale(ctx, scale); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade scale")
	}
	s.cache.InvalidateCourse(ctx, courseID)
	return scale, nil
}

// ListCategories returns categories by weight, heaviest first.
func (s *GradeConfigService) ListCategories(ctx context.Context, courseID string) (*CategoryList, error) {
	categories, err := s.repo.ListCategories(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade categories")
	}
	list := &CategoryList{Categories: categories}
	for _, category := range categories {
		list.TotalWeight += category.Weight
	}
	list.Balanced = len(categories) > 0 && list.TotalWeight > 100-weightTolerance && list.TotalWeight < 100+weightTolerance
	return list, nil
}

// CreateCategory adds a category; one per assignment type per course.
func (s *GradeConfigService) CreateCategory(ctx context.Context, courseID string, req GradeCategoryRequest) (*models.GradeCategory, error) {
	if err := s.validateCategory(&req); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueType(ctx, courseID, req.AssignmentType, ""); err != nil {
		return nil, err
	}
	category := &models.GradeCategory{
		CourseID:       courseID,
		Name:           req.Name,
		AssignmentType: req.AssignmentType,
		Weight:         req.Weight,
		DropLowest:     req.DropLowest,
	}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade category")
	}
	s.cache.InvalidateCourse(ctx, courseID)
	return category, nil
}

// UpdateCategory modifies a category of the given course.
func (s *GradeConfigService) UpdateCategory(ctx context.Context, courseID, id string, req GradeCategoryRequest) (*models.GradeCategory, error) {
	if err := s.validateCategory(&req); err != nil {
		return nil, err
	}
	category, err := s.findCategory(ctx, courseID, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueType(ctx, courseID, req.AssignmentType, id); err != nil {
		return nil, err
	}
	category.Name = req.Name
	category.AssignmentType = req.AssignmentType
	category.Weight = req.Weight
	category.DropLowest = req.DropLowest
	if err := s.repo.UpdateCategory(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade category")
	}
	s.cache.InvalidateCourse(ctx, courseID)
	return category, nil
}

// DeleteCategory removes a category of the given course.
func (s *GradeConfigService) DeleteCategory(ctx context.Context, courseID, id string) error {
	if _, err := s.findCategory(ctx, courseID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade category")
	}
	s.cache.InvalidateCourse(ctx, courseID)
	return nil
}

func (s *GradeConfigService) validateCategory(req *GradeCategoryRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.AssignmentType = models.AssignmentType(strings.ToUpper(strings.TrimSpace(string(req.AssignmentType))))
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade category payload")
	}
	if !req.AssignmentType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported assignment type %s", req.AssignmentType))
	}
	return nil
}

func (s *GradeConfigService) ensureUniqueType(ctx context.Context, courseID string, assignmentType models.AssignmentType, excludeID string) error {
	exists, err := s.repo.CategoryExists(ctx, courseID, assignmentType, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate grade category")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "a category for this assignment type already exists")
	}
	return nil
}

func (s *GradeConfigService) findCategory(ctx context.Context, courseID, id string) (*models.GradeCategory, error) {
	category, err := s.repo.FindCategory(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade category")
	}
	if category.CourseID != courseID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "grade category not found")
	}
	return category, nil
}
