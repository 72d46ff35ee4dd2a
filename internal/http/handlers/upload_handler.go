// Image upload HTTP handler.
//
// POST /upload/image proxies a base64 image payload to the configured image
// host and returns the hosted URL. Keeping the host's API key server-side is
// the whole point: clients never see it.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UploadImageRequest is the JSON payload for an image upload.
type UploadImageRequest struct {
	// Image is the base64-encoded image data, without a data: URL prefix.
	Image string `json:"image" binding:"required"`
}

// UploadImageResponse carries the hosted image URL.
type UploadImageResponse struct {
	URL string `json:"url"`
}

// UploadImage uploads a base64 image to the image host.
func (h *Handlers) UploadImage(c *gin.Context) {
	ctx := c.Request.Context()

	var req UploadImageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Image) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image required")
		return
	}

	key, err := h.settingsSvc.ImageKey(ctx)
	if err != nil {
		failUpstream(c, err, ErrCodeUploadFailed)
		return
	}

	url, err := h.uploader.Upload(ctx, key, req.Image)
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeUploadFailed, "image upload failed")
		return
	}
	ok(c, http.StatusOK, UploadImageResponse{URL: url})
}
