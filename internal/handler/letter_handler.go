package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pmb-api/internal/dto"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
	"github.com/noah-isme/pmb-api/pkg/response"
)

type letterService interface {
	Link(ctx context.Context, candidateID string, actor dto.Actor) (*dto.LetterLink, error)
	Open(ctx context.Context, token string) (io.ReadCloser, string, error)
}

// LetterHandler issues and serves admission letters.
type LetterHandler struct {
	service letterService
}

// NewLetterHandler constructs the handler.
func NewLetterHandler(svc letterService) *LetterHandler {
	return &LetterHandler{service: svc}
}

// Link godoc
// @Summary Admission letter link
// @Description Returns a signed, expiring download link for an approved candidate's letter
// @Tags Letters
// @Produce json
// @Security BearerAuth
// @Param id path string true "Candidate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /candidates/{id}/letter [get]
func (h *LetterHandler) Link(c *gin.Context) {
	link, err := h.service.Link(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download admission letter
// @Tags Letters
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /letters/download [get]
func (h *LetterHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.service.Open(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	response.Attachment(c, name, "application/pdf")
	_, _ = io.Copy(c.Writer, file)
}
