package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
	"github.com/noah-isme/lms-gradebook-api/pkg/response"
)

// ContextCourseKey stores the course ID resolved by CourseInstructor.
const ContextCourseKey = "courseID"

type instructorChecker interface {
	EnsureInstructor(ctx context.Context, courseID string, claims *models.JWTClaims) error
}

// CourseResolver extracts the course a request targets.
type CourseResolver func(c *gin.Context) (string, error)

// CourseParam resolves the course from a path parameter.
func CourseParam(name string) CourseResolver {
	return func(c *gin.Context) (string, error) {
		id := c.Param(name)
		if id == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, name+" is required")
		}
		return id, nil
	}
}

// CourseFrom resolves the course through a lookup on a path parameter,
// e.g. the course owning an enrollment or submission.
func CourseFrom(name string, lookup func(ctx context.Context, id string) (string, error)) CourseResolver {
	return func(c *gin.Context) (string, error) {
		id := c.Param(name)
		if id == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, name+" is required")
		}
		return lookup(c.Request.Context(), id)
	}
}

// CourseInstructor admits admins and the instructor of the resolved course.
func CourseInstructor(access instructorChecker, resolve CourseResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		courseID, err := resolve(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if err := access.EnsureInstructor(c.Request.Context(), courseID, claims); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextCourseKey, courseID)
		c.Next()
	}
}
