// Test generation HTTP handlers.
//
// This file exposes the test endpoints:
//   - POST /test/generate               (requirement-driven generation)
//   - POST /test/generate-from-matrix   (generation from exam matrix images)
//   - GET  /test/:id                    (fetch a stored test)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/services"
)

//
// DTOs
//

// GenerateTestRequest is the JSON payload for requirement-driven test
// generation.
type GenerateTestRequest struct {
	Subject       string `json:"subject" binding:"required"`
	Difficulty    string `json:"difficulty" binding:"required"`
	QuestionType  string `json:"questionType" binding:"required"`
	QuestionCount int    `json:"questionCount" binding:"required"`
	Requirements  string `json:"requirements"`
}

// GenerateFromMatrixRequest is the JSON payload for matrix-based generation.
// MatrixImages holds hosted image URLs of the exam specification matrix.
type GenerateFromMatrixRequest struct {
	Subject      string   `json:"subject" binding:"required"`
	MatrixImages []string `json:"matrixImages" binding:"required,min=1"`
}

//
// Handlers
//

// GenerateTest produces a test from explicit parameters and stores it.
func (h *Handlers) GenerateTest(c *gin.Context) {
	var req GenerateTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject, difficulty, questionType and questionCount required")
		return
	}

	t, err := h.testSvc.Generate(c.Request.Context(), services.GenerateTestInput{
		Subject:       req.Subject,
		Difficulty:    req.Difficulty,
		QuestionType:  req.QuestionType,
		QuestionCount: req.QuestionCount,
		Requirements:  req.Requirements,
	})
	if err != nil {
		switch err {
		case services.ErrInvalidQuestionCount:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "questionCount out of range")
		case services.ErrUnknownSubject:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown subject")
		case services.ErrSubjectNotAllowed:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject not available for the active AI backend")
		case services.ErrEmptyTest:
			fail(c, http.StatusBadGateway, ErrCodeGenerationFailed, "AI returned an empty test")
		default:
			failUpstream(c, err, ErrCodeGenerationFailed)
		}
		return
	}
	ok(c, http.StatusOK, t)
}

// GenerateTestFromMatrix produces a test from exam matrix images via the
// vision model and stores it.
func (h *Handlers) GenerateTestFromMatrix(c *gin.Context) {
	var req GenerateFromMatrixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject and at least one matrix image required")
		return
	}

	t, err := h.testSvc.GenerateFromMatrix(c.Request.Context(), req.Subject, req.MatrixImages)
	if err != nil {
		switch err {
		case services.ErrEmptyContent:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at least one matrix image required")
		case services.ErrUnknownSubject:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown subject")
		case services.ErrSubjectNotAllowed:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject not available for the active AI backend")
		case services.ErrEmptyTest:
			fail(c, http.StatusBadGateway, ErrCodeGenerationFailed, "AI returned an empty test")
		default:
			failUpstream(c, err, ErrCodeGenerationFailed)
		}
		return
	}
	ok(c, http.StatusOK, t)
}

// ListTestsResponse contains a page of generated tests and pagination
// metadata.
type ListTestsResponse struct {
	Tests      []domain.GeneratedTest `json:"tests"`
	Pagination Pagination             `json:"pagination"`
}

// ListTests returns a page of generated tests, newest first. An optional
// subject query parameter filters by subject.
func (h *Handlers) ListTests(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.testSvc.List(c.Request.Context(), c.Query("subject"), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListTestsResponse{
		Tests:      items,
		Pagination: paginate(page, pageSize, total),
	})
}

// GetTest returns a stored test by id.
func (h *Handlers) GetTest(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "test id must be a UUID")
		return
	}

	t, err := h.testSvc.Get(c.Request.Context(), id)
	if err != nil {
		switch err {
		case services.ErrTestNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "test not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, t)
}
