package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-gradebook-api/internal/middleware"
	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type gradebookServiceMock struct {
	book       *models.Gradebook
	hit        bool
	err        error
	report     *models.StudentGradeReport
	reportErr  error
	reportedID string
}

func (m *gradebookServiceMock) CachedGradebook(ctx context.Context, courseID string) (*models.Gradebook, bool, error) {
	return m.book, m.hit, m.err
}

func (m *gradebookServiceMock) StudentReport(ctx context.Context, courseID, studentID string) (*models.StudentGradeReport, error) {
	m.reportedID = studentID
	return m.report, m.reportErr
}

type exporterMock struct {
	format service.ExportFormat
	file   *service.ExportFile
	err    error
}

func (m *exporterMock) ExportGradebook(ctx context.Context, courseID string, format service.ExportFormat) (*service.ExportFile, error) {
	m.format = format
	return m.file, m.err
}

type recalculatorMock struct {
	runOpts    *service.RecalculateOptions
	queued     *service.RecalculateOptions
	result     *service.RecalculationResult
	ticket     *service.RecalculationTicket
	enqueueErr error
}

func (m *recalculatorMock) Run(ctx context.Context, courseID string, opts service.RecalculateOptions) (*service.RecalculationResult, error) {
	m.runOpts = &opts
	return m.result, nil
}

func (m *recalculatorMock) Enqueue(courseID string, opts service.RecalculateOptions) (*service.RecalculationTicket, error) {
	m.queued = &opts
	return m.ticket, m.enqueueErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestGradebookHandlerGradebookReportsCacheHit(t *testing.T) {
	svc := &gradebookServiceMock{book: &models.Gradebook{CourseID: "c1"}, hit: true}
	h := NewGradebookHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/courses/c1/gradebook", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "c1"}}
	h.Gradebook(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Contains(t, string(env["meta"]), `"cache_hit":true`)
	assert.Contains(t, string(env["data"]), `"course_id":"c1"`)
}

func TestGradebookHandlerGradebookError(t *testing.T) {
	svc := &gradebookServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "course not found")}
	h := NewGradebookHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/courses/c9/gradebook", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "c9"}}
	h.Gradebook(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGradebookHandlerExport(t *testing.T) {
	exporter := &exporterMock{file: &service.ExportFile{Filename: "CS101_grades_20240101.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}}
	h := NewGradebookHandler(nil, exporter, nil)

	c, w := newGinContext(http.MethodGet, "/courses/c1/gradebook/export?format=pdf", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "c1"}}
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatPDF, exporter.format)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "CS101_grades_20240101.pdf")
}

func TestGradebookHandlerExportDefaultsToCSV(t *testing.T) {
	exporter := &exporterMock{file: &service.ExportFile{Filename: "x.csv", ContentType: "text/csv", Data: []byte("a,b")}}
	h := NewGradebookHandler(nil, exporter, nil)

	c, _ := newGinContext(http.MethodGet, "/courses/c1/gradebook/export", nil)
	h.Export(c)

	assert.Equal(t, service.ExportFormatCSV, exporter.format)
}

func TestGradebookHandlerRecalculateSync(t *testing.T) {
	recalc := &recalculatorMock{result: &service.RecalculationResult{CourseID: "c1", Recalculated: 3, Skipped: 1}}
	h := NewGradebookHandler(nil, nil, recalc)

	c, w := newGinContext(http.MethodPost, "/courses/c1/grades/recalculate", []byte(`{"notify_students":true}`))
	c.Params = gin.Params{{Key: "courseId", Value: "c1"}}
	h.Recalculate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, recalc.runOpts)
	assert.True(t, recalc.runOpts.NotifyStudents)
	assert.Nil(t, recalc.queued)
}

func TestGradebookHandlerRecalculateAsync(t *testing.T) {
	recalc := &recalculatorMock{ticket: &service.RecalculationTicket{JobID: "job-1", CourseID: "c1", Status: "queued"}}
	h := NewGradebookHandler(nil, nil, recalc)

	c, w := newGinContext(http.MethodPost, "/courses/c1/grades/recalculate", []byte(`{"async":true}`))
	c.Params = gin.Params{{Key: "courseId", Value: "c1"}}
	h.Recalculate(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, recalc.queued)
	assert.Nil(t, recalc.runOpts)
}

func TestGradebookHandlerRecalculateAsyncDuplicate(t *testing.T) {
	recalc := &recalculatorMock{enqueueErr: appErrors.Clone(appErrors.ErrConflict, "recalculation already pending")}
	h := NewGradebookHandler(nil, nil, recalc)

	c, w := newGinContext(http.MethodPost, "/courses/c1/grades/recalculate", []byte(`{"async":true}`))
	h.Recalculate(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGradebookHandlerRecalculateWithoutBody(t *testing.T) {
	recalc := &recalculatorMock{result: &service.RecalculationResult{CourseID: "c1"}}
	h := NewGradebookHandler(nil, nil, recalc)

	c, w := newGinContext(http.MethodPost, "/courses/c1/grades/recalculate", nil)
	h.Recalculate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, recalc.runOpts)
	assert.False(t, recalc.runOpts.NotifyStudents)
}

func TestGradebookHandlerMyGradesUsesCaller(t *testing.T) {
	svc := &gradebookServiceMock{report: &models.StudentGradeReport{}}
	h := NewGradebookHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/courses/c1/grades/me", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "c1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	h.MyGrades(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", svc.reportedID)
}

func TestGradebookHandlerMyGradesRequiresStudent(t *testing.T) {
	svc := &gradebookServiceMock{}
	h := NewGradebookHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/courses/c1/grades/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "i1", Role: models.RoleInstructor})
	h.MyGrades(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newGinContext(http.MethodGet, "/courses/c1/grades/me", nil)
	h.MyGrades(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGradebookHandlerStudentGrades(t *testing.T) {
	svc := &gradebookServiceMock{report: &models.StudentGradeReport{}}
	h := NewGradebookHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/courses/c1/students/s7/grades", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "c1"}, {Key: "studentId", Value: "s7"}}
	h.StudentGrades(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s7", svc.reportedID)
}
