package handler

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pmb-api/internal/service"
	"github.com/noah-isme/pmb-api/pkg/export"
	"github.com/noah-isme/pmb-api/pkg/response"
)

type rosterService interface {
	Load(ctx context.Context, year int, programCode string) (export.Dataset, error)
	Write(w io.Writer, data export.Dataset) error
}

// RosterHandler streams roster exports.
type RosterHandler struct {
	service rosterService
	now     func() time.Time
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(svc rosterService) *RosterHandler {
	return &RosterHandler{service: svc, now: time.Now}
}

// Export godoc
// @Summary Export admitted roster
// @Description CSV of candidates approved in the year, ordered by NIM
// @Tags Exports
// @Produce text/csv
// @Security BearerAuth
// @Param year query int false "Intake year (defaults to the current UTC year)"
// @Param program query string false "Program code"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admissions/export [get]
func (h *RosterHandler) Export(c *gin.Context) {
	year, err := yearParam(c, h.now)
	if err != nil {
		response.Error(c, err)
		return
	}
	program := c.Query("program")
	data, err := h.service.Load(c.Request.Context(), year, program)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Attachment(c, service.RosterFileName(year, program), "text/csv; charset=utf-8")
	if err := h.service.Write(c.Writer, data); err != nil {
		_ = c.Error(err)
	}
}
