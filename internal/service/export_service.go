package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
	"github.com/noah-isme/lms-gradebook-api/pkg/export"
)

// ExportFormat selects the rendered gradebook format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

var gradebookExportHeaders = []string{
	"Student ID",
	"Student Name",
	"Email",
	"Percentage",
	"Letter Grade",
	"Is Overridden",
	"Last Updated",
}

type gradebookSource interface {
	Gradebook(ctx context.Context, courseID string) (*models.Gradebook, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	PDFTitlePrefix string
}

// ExportFile is a rendered export ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders gradebooks to downloadable files.
type ExportService struct {
	gradebooks gradebookSource
	courses    courseReader
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(gradebooks gradebookSource, courses courseReader, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PDFTitlePrefix == "" {
		cfg.PDFTitlePrefix = "Gradebook"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		gradebooks: gradebooks,
		courses:    courses,
		csv:        csv,
		pdf:        pdf,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ExportGradebook renders the course gradebook in the requested format.
func (s *ExportService) ExportGradebook(ctx context.Context, courseID string, format ExportFormat) (*ExportFile, error) {
	format = ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %s", format))
	}

	book, err := s.gradebooks.Gradebook(ctx, courseID)
	if err != nil {
		return nil, err
	}
	code := courseID
	if course, err := s.courses.FindByID(ctx, courseID); err == nil && course.Code != "" {
		code = course.Code
	}

	dataset := gradebookDataset(book)
	var payload []byte
	var contentType string
	switch format {
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("%s %s", s.cfg.PDFTitlePrefix, code))
		contentType = "application/pdf"
	default:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gradebook export")
	}

	s.logger.Info("gradebook exported", zap.String("course_id", courseID), zap.String("format", string(format)), zap.Int("rows", len(book.Rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("%s_grades_%s.%s", sanitizeFilename(code), s.now().Format("20060102"), format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func gradebookDataset(book *models.Gradebook) export.Dataset {
	rows := make([]map[string]string, 0, len(book.Rows))
	for _, row := range book.Rows {
		record := map[string]string{
			"Student ID":    row.StudentID,
			"Student Name":  row.StudentName,
			"Email":         row.StudentEmail,
			"Letter Grade":  row.LetterGrade,
			"Is Overridden": "No",
		}
		if row.Percentage != nil {
			record["Percentage"] = fmt.Sprintf("%.2f", *row.Percentage)
		}
		if row.IsOverridden {
			record["Is Overridden"] = "Yes"
		}
		if row.LastCalculated != nil {
			record["Last Updated"] = row.LastCalculated.Format("2006-01-02 15:04")
		}
		rows = append(rows, record)
	}

	notes := []string{fmt.Sprintf("Students: %d", len(book.Rows))}
	if book.Stats.Average != nil {
		notes = append(notes, fmt.Sprintf("Class average: %.2f%%", *book.Stats.Average))
	}
	return export.Dataset{
		Headers:     gradebookExportHeaders,
		Rows:        rows,
		Notes:       notes,
		Placeholder: models.NoGrade,
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
