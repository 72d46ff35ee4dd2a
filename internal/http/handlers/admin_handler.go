// Admin HTTP handlers.
//
// This file exposes the administration endpoints:
//   - POST /admin/login             (bcrypt credential check, issues a session token)
//   - GET  /admin/settings          (redacted settings view)
//   - POST /admin/settings          (replace settings)
//   - GET  /admin/export-database   (download the full store as a .sql artifact)
//   - POST /admin/import-database   (restore the store from a .sql upload)
//
// Everything except login sits behind RequireAdmin. Credentials never appear
// in responses or logs; settings views carry the redaction marker instead of
// stored keys.
package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/limva/limva-backend/internal/backup"
	"github.com/limva/limva-backend/internal/http/middleware"
	"github.com/limva/limva-backend/internal/services"
)

//
// DTOs
//

// LoginRequest is the JSON payload for an admin login attempt.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the session token issued on successful login.
type LoginResponse struct {
	Token string `json:"token"`
}

// UpdateSettingsRequest is the JSON payload for replacing the admin settings.
// Key fields may carry the redaction marker to keep the stored value.
type UpdateSettingsRequest struct {
	DeepseekEnabled  bool   `json:"deepseekEnabled"`
	Gpt5Enabled      bool   `json:"gpt5Enabled"`
	OpenRouterAPIKey string `json:"openrouterApiKey"`
	ImgBBAPIKey      string `json:"imgbbApiKey"`
}

// ImportResponse reports the outcome of a database import.
type ImportResponse struct {
	Attempted int                      `json:"attempted"`
	Succeeded int                      `json:"succeeded"`
	Failed    []backup.FailedStatement `json:"failed"`
}

//
// Middleware
//

// RequireAdmin rejects requests without a live admin session token in the
// Authorization header ("Bearer <token>").
func (h *Handlers) RequireAdmin(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if !h.validToken(token) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "admin session required")
		return
	}
	c.Next()
}

//
// Handlers
//

// Login verifies the admin credentials against the configured bcrypt hash
// and issues a session token. Failed attempts return a uniform 401 without
// revealing which part of the credentials was wrong.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}

	if h.admin.PasswordHash == "" {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "admin login is not configured")
		return
	}
	if req.Username != h.admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(req.Password)) != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
		return
	}

	middleware.LoggerFrom(c).Info().Msg("admin login")
	ok(c, http.StatusOK, LoginResponse{Token: h.issueToken()})
}

// GetSettings returns the current settings with credentials redacted.
func (h *Handlers) GetSettings(c *gin.Context) {
	view, err := h.settingsSvc.View(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, view)
}

// UpdateSettings replaces the stored settings. Conflicting backend flags are
// resolved by the service; the response is always the redacted view of what
// was actually persisted.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid settings payload")
		return
	}

	view, err := h.settingsSvc.Update(c.Request.Context(), services.UpdateSettingsInput{
		DeepseekEnabled:  req.DeepseekEnabled,
		Gpt5Enabled:      req.Gpt5Enabled,
		OpenRouterAPIKey: req.OpenRouterAPIKey,
		ImgBBAPIKey:      req.ImgBBAPIKey,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, view)
}

// ExportDatabase streams the full store as a timestamped .sql attachment.
func (h *Handlers) ExportDatabase(c *gin.Context) {
	artifact, err := backup.Export(c.Request.Context(), h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}

	filename := fmt.Sprintf("limva-backup-%s.sql", time.Now().UTC().Format("2006-01-02-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/sql", []byte(artifact))
}

// ImportDatabase restores the store from an uploaded .sql artifact. The
// managed tables are wiped first; individual statement failures are reported
// in the response but do not fail the import as a whole.
func (h *Handlers) ImportDatabase(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a .sql file upload is required")
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".sql") {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "only .sql files are accepted")
		return
	}
	if fileHeader.Size > h.importMax {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Sprintf("file too large: max %d bytes", h.importMax))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read uploaded file")
		return
	}
	defer f.Close()

	sqlText, err := io.ReadAll(io.LimitReader(f, h.importMax+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read uploaded file")
		return
	}
	if int64(len(sqlText)) > h.importMax {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Sprintf("file too large: max %d bytes", h.importMax))
		return
	}

	result, err := backup.Import(c.Request.Context(), h.db, string(sqlText))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeImportFailed, err.Error())
		return
	}

	middleware.LoggerFrom(c).Info().
		Int("attempted", result.Attempted).
		Int("succeeded", result.Succeeded).
		Int("failed", len(result.Failed)).
		Msg("database import completed")

	ok(c, http.StatusOK, ImportResponse{
		Attempted: result.Attempted,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	})
}
