package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pmb-api/internal/models"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
	"github.com/noah-isme/pmb-api/pkg/response"
)

type programService interface {
	List(ctx context.Context) ([]models.Program, error)
}

type counterService interface {
	List(ctx context.Context, year int) ([]models.NIMCounter, error)
}

// CatalogHandler serves programs and NIM counters.
type CatalogHandler struct {
	programs programService
	counters counterService
	now      func() time.Time
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(programs programService, counters counterService) *CatalogHandler {
	return &CatalogHandler{programs: programs, counters: counters, now: time.Now}
}

// Programs godoc
// @Summary List study programs
// @Tags Programs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /programs [get]
func (h *CatalogHandler) Programs(c *gin.Context) {
	programs, err := h.programs.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, nil)
}

// Counters godoc
// @Summary List NIM counters
// @Description Last issued sequence per program for an intake year (defaults to the current UTC year)
// @Tags Programs
// @Produce json
// @Security BearerAuth
// @Param year query int false "Intake year"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /nim-counters [get]
func (h *CatalogHandler) Counters(c *gin.Context) {
	year, err := yearParam(c, h.now)
	if err != nil {
		response.Error(c, err)
		return
	}
	counters, err := h.counters.List(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counters, nil, map[string]interface{}{"year": year})
}

func yearParam(c *gin.Context, now func() time.Time) (int, error) {
	raw := c.Query("year")
	if raw == "" {
		return now().UTC().Year(), nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "year must be numeric")
	}
	return year, nil
}
