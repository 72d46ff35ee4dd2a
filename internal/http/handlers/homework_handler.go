// Homework HTTP handlers.
//
// This file exposes the homework endpoints:
//   - POST /homework/submit          (store a submission and analyze it)
//   - GET  /homework/:id             (fetch a stored submission)
//   - POST /homework/:id/followup    (ask a question about a submission)
//
// Handlers are transport-thin: they validate and normalize inputs, resolve
// image uploads, and delegate to HomeworkService.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/services"
)

//
// DTOs
//

// SubmitHomeworkRequest is the JSON payload for a homework submission.
// Either Content or an image must be present. ImageBase64 is uploaded to the
// image host first; ImageURL is used as-is when already hosted.
type SubmitHomeworkRequest struct {
	Subject     string `json:"subject" binding:"required"`
	Content     string `json:"content"`
	ImageURL    string `json:"imageUrl"`
	ImageBase64 string `json:"imageBase64"`
}

// SubmitHomeworkResponse bundles the stored submission with its analysis.
// AnalysisError is set when the AI call failed; the submission is stored
// regardless.
type SubmitHomeworkResponse struct {
	Submission    *domain.HomeworkSubmission `json:"submission"`
	Analysis      *domain.Analysis           `json:"analysis,omitempty"`
	AnalysisError string                     `json:"analysisError,omitempty"`
}

// FollowupRequest is the JSON payload for a follow-up question.
type FollowupRequest struct {
	Question string `json:"question" binding:"required,min=1"`
}

// FollowupResponse carries the tutor's answer to a follow-up question.
type FollowupResponse struct {
	Answer string `json:"answer"`
}

//
// Handlers
//

// SubmitHomework stores and analyzes one piece of student work.
func (h *Handlers) SubmitHomework(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject required")
		return
	}

	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL == "" && req.ImageBase64 != "" {
		key, err := h.settingsSvc.ImageKey(ctx)
		if err != nil {
			failUpstream(c, err, ErrCodeUploadFailed)
			return
		}
		hosted, err := h.uploader.Upload(ctx, key, req.ImageBase64)
		if err != nil {
			fail(c, http.StatusBadGateway, ErrCodeUploadFailed, "image upload failed")
			return
		}
		imageURL = hosted
	}

	res, err := h.homeworkSvc.Submit(ctx, req.Subject, req.Content, imageURL)
	if err != nil {
		switch err {
		case services.ErrEmptyContent:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content or image required")
		case services.ErrUnknownSubject:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown subject")
		case services.ErrSubjectNotAllowed:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject not available for the active AI backend")
		default:
			failUpstream(c, err, ErrCodeAnalysisFailed)
		}
		return
	}

	resp := SubmitHomeworkResponse{
		Submission: res.Submission,
		Analysis:   res.Analysis,
	}
	if res.AnalysisErr != nil {
		resp.AnalysisError = "analysis failed, submission stored"
	}
	ok(c, http.StatusOK, resp)
}

// GetHomework returns a stored submission by id.
func (h *Handlers) GetHomework(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "homework id must be a UUID")
		return
	}

	sub, err := h.homeworkSvc.Get(c.Request.Context(), id)
	if err != nil {
		switch err {
		case services.ErrSubmissionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "homework not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, sub)
}

// ListHomeworkResponse contains a page of submissions and pagination
// metadata.
type ListHomeworkResponse struct {
	Submissions []domain.HomeworkSubmission `json:"submissions"`
	Pagination  Pagination                  `json:"pagination"`
}

// ListHomework returns a page of submissions, newest first. An optional
// subject query parameter filters by subject.
func (h *Handlers) ListHomework(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.homeworkSvc.List(c.Request.Context(), c.Query("subject"), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListHomeworkResponse{
		Submissions: items,
		Pagination:  paginate(page, pageSize, total),
	})
}

// Followup answers a question about a previously submitted homework, using
// the stored submission, its analysis, and all prior exchanges as context.
func (h *Handlers) Followup(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "homework id must be a UUID")
		return
	}

	var req FollowupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}

	answer, err := h.homeworkSvc.Followup(c.Request.Context(), id, req.Question)
	if err != nil {
		switch err {
		case services.ErrEmptyQuestion:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		case services.ErrContextNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "homework not found")
		default:
			failUpstream(c, err, ErrCodeChatFailed)
		}
		return
	}
	ok(c, http.StatusOK, FollowupResponse{Answer: answer})
}
