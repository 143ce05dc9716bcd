package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pmb-api/internal/dto"
	"github.com/noah-isme/pmb-api/internal/middleware"
	"github.com/noah-isme/pmb-api/internal/models"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
	"github.com/noah-isme/pmb-api/pkg/response"
)

type admissionService interface {
	Register(ctx context.Context, req dto.RegisterCandidateRequest) (*models.CandidateDetail, error)
	Status(ctx context.Context, id string) (*dto.CandidateStatus, bool, error)
	List(ctx context.Context, filter models.CandidateFilter) ([]models.CandidateDetail, *models.Pagination, error)
	Approve(ctx context.Context, candidateID string, actor dto.Actor) (*dto.ApprovalResult, error)
}

// AdmissionHandler exposes candidate registration, status and approval endpoints.
type AdmissionHandler struct {
	service admissionService
}

// NewAdmissionHandler constructs the handler.
func NewAdmissionHandler(svc admissionService) *AdmissionHandler {
	return &AdmissionHandler{service: svc}
}

// Register godoc
// @Summary Register candidate
// @Description Submit a new admission application. The candidate starts as pending without a NIM.
// @Tags Candidates
// @Accept json
// @Produce json
// @Param payload body dto.RegisterCandidateRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /candidates [post]
func (h *AdmissionHandler) Register(c *gin.Context) {
	var req dto.RegisterCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	candidate, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, candidate)
}

// Status godoc
// @Summary Candidate status
// @Description Public status check of an application
// @Tags Candidates
// @Produce json
// @Param id path string true "Candidate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /candidates/{id} [get]
func (h *AdmissionHandler) Status(c *gin.Context) {
	status, hit, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, status, nil, middleware.ResponseMeta(c))
}

// List godoc
// @Summary List candidates
// @Tags Candidates
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved or rejected"
// @Param program query string false "Program code"
// @Param q query string false "Name or email search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort query string false "created_at, full_name, approved_at or nim"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /candidates [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	filter := models.CandidateFilter{
		ProgramCode: c.Query("program"),
		Search:      strings.TrimSpace(c.Query("q")),
		Page:        queryInt(c, "page"),
		PageSize:    queryInt(c, "page_size"),
		SortBy:      c.Query("sort"),
		SortOrder:   c.Query("order"),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		s := models.CandidateStatus(strings.ToLower(status))
		filter.Status = &s
	}

	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Approve godoc
// @Summary Approve candidate
// @Description Approve a pending candidate and assign its NIM. Repeating the call returns the NIM already assigned.
// @Tags Candidates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Candidate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /candidates/{id}/approve [post]
func (h *AdmissionHandler) Approve(c *gin.Context) {
	result, err := h.service.Approve(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
