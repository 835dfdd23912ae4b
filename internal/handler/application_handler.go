package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/middleware"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/service"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

type applicationService interface {
	Lookup(ctx context.Context, id string, actor models.Actor) (*models.Application, bool, error)
	ReviewSummary(ctx context.Context, id string, actor models.Actor) (*models.ReviewStatus, error)
	Validate(ctx context.Context, id string, actor models.Actor) (*service.ValidationResult, error)
	History(ctx context.Context, id string, actor models.Actor) ([]models.WorkflowHistoryEntry, error)
	SaveDraft(ctx context.Context, id string, req dto.SaveDraftRequest, actor models.Actor) (*dto.SaveDraftResponse, error)
	Submit(ctx context.Context, id string, req dto.SubmitApplicationRequest, actor models.Actor) (*models.Application, error)
	DecideDocuments(ctx context.Context, id string, decisions []models.DocumentDecision, actor models.Actor) (*dto.DocumentDecisionsResponse, error)
	Approve(ctx context.Context, id string, req dto.ApproveApplicationRequest, actor models.Actor) (*models.Application, error)
	Reject(ctx context.Context, id string, req dto.RejectApplicationRequest, actor models.Actor) (*models.Application, error)
	RequestResubmission(ctx context.Context, id string, req dto.ResubmissionRequest, actor models.Actor) (*models.Application, error)
	Withdraw(ctx context.Context, id string, req dto.WithdrawApplicationRequest, actor models.Actor) (*models.Application, error)
}

// ApplicationHandler exposes the application workflow over REST.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// CreateDraft godoc
// @Summary Create a draft application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.SaveDraftRequest true "Draft payload"
// @Success 201 {object} response.Envelope
// @Router /applications/draft [post]
func (h *ApplicationHandler) CreateDraft(c *gin.Context) {
	h.saveDraft(c, "")
}

// UpdateDraft godoc
// @Summary Save changes to a draft application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.SaveDraftRequest true "Draft payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/draft [put]
func (h *ApplicationHandler) UpdateDraft(c *gin.Context) {
	h.saveDraft(c, c.Param("id"))
}

func (h *ApplicationHandler) saveDraft(c *gin.Context, id string) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid draft payload"))
		return
	}
	res, err := h.service.SaveDraft(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if id == "" {
		response.Created(c, res)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Get godoc
// @Summary Get application detail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	app, cacheHit, err := h.service.Lookup(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, app, nil, middleware.ExtractMeta(c))
}

// ReviewSummary godoc
// @Summary Document review summary
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/review-summary [get]
func (h *ApplicationHandler) ReviewSummary(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	summary, err := h.service.ReviewSummary(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// History godoc
// @Summary Workflow history
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/history [get]
func (h *ApplicationHandler) History(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	history, err := h.service.History(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Validate godoc
// @Summary Dry-run submission checks
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/validate [post]
func (h *ApplicationHandler) Validate(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	result, err := h.service.Validate(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "valid", result.Valid())
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Submit godoc
// @Summary Submit an application for review
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.SubmitApplicationRequest true "Submission"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/submit [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.SubmitApplicationRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	app, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// DecideDocuments godoc
// @Summary Approve or reject documents
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.DocumentDecisionsRequest true "Decisions"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/documents/decisions [post]
func (h *ApplicationHandler) DecideDocuments(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.DocumentDecisionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decisions payload"))
		return
	}
	res, err := h.service.DecideDocuments(c.Request.Context(), c.Param("id"), req.Decisions, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Approve godoc
// @Summary Approve an application
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ApproveApplicationRequest false "Remarks"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/approve [post]
func (h *ApplicationHandler) Approve(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.ApproveApplicationRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	app, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Reject godoc
// @Summary Reject an application
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RejectApplicationRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/reject [post]
func (h *ApplicationHandler) Reject(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.RejectApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rejection payload"))
		return
	}
	app, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// RequestResubmission godoc
// @Summary Send an application back for changes
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ResubmissionRequest true "Remarks"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/request-resubmission [post]
func (h *ApplicationHandler) RequestResubmission(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.ResubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resubmission payload"))
		return
	}
	app, err := h.service.RequestResubmission(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Withdraw godoc
// @Summary Withdraw an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.WithdrawApplicationRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/withdraw [post]
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.WithdrawApplicationRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	app, err := h.service.Withdraw(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

func (h *ApplicationHandler) begin(c *gin.Context) (models.Actor, bool) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "application service not configured"))
		return models.Actor{}, false
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

// bindOptionalJSON accepts an empty body and rejects malformed JSON.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return false
	}
	return true
}
