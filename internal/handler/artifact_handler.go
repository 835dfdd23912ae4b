package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

type artifactService interface {
	AssembleCombinedPDF(ctx context.Context, id string, refs []string, actor models.Actor) (*models.Artifact, error)
	AssembleZip(ctx context.Context, id string, refs []string, actor models.Actor) (*models.Artifact, error)
	GenerateSummary(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error)
	ResolveDownload(ctx context.Context, token string) (*models.ArtifactDownload, error)
}

// ArtifactHandler serves generated PDFs and ZIP bundles.
type ArtifactHandler struct {
	service artifactService
}

// NewArtifactHandler constructs the handler.
func NewArtifactHandler(service artifactService) *ArtifactHandler {
	return &ArtifactHandler{service: service}
}

// CombinedPDF godoc
// @Summary Merge approved documents into one PDF
// @Tags Artifacts
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ArtifactRequest false "Document ids or types"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /applications/{id}/artifacts/pdf [post]
func (h *ArtifactHandler) CombinedPDF(c *gin.Context) {
	h.assemble(c, func(ctx context.Context, id string, refs []string, actor models.Actor) (*models.Artifact, error) {
		return h.service.AssembleCombinedPDF(ctx, id, refs, actor)
	})
}

// Zip godoc
// @Summary Bundle approved documents into a ZIP archive
// @Tags Artifacts
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ArtifactRequest false "Document ids or types"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /applications/{id}/artifacts/zip [post]
func (h *ArtifactHandler) Zip(c *gin.Context) {
	h.assemble(c, func(ctx context.Context, id string, refs []string, actor models.Actor) (*models.Artifact, error) {
		return h.service.AssembleZip(ctx, id, refs, actor)
	})
}

// Summary godoc
// @Summary Render the application summary PDF
// @Tags Artifacts
// @Produce json
// @Param id path string true "Application ID"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/artifacts/summary [post]
func (h *ArtifactHandler) Summary(c *gin.Context) {
	h.assemble(c, func(ctx context.Context, id string, _ []string, actor models.Actor) (*models.Artifact, error) {
		return h.service.GenerateSummary(ctx, id, actor)
	})
}

// Download godoc
// @Summary Download a generated artifact
// @Tags Artifacts
// @Produce application/pdf
// @Produce application/zip
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /artifacts/download [get]
func (h *ArtifactHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "artifact service not configured"))
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, download.FileName, download.ContentType, download.Data)
}

type assembleFunc func(ctx context.Context, id string, refs []string, actor models.Actor) (*models.Artifact, error)

func (h *ArtifactHandler) assemble(c *gin.Context, run assembleFunc) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "artifact service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ArtifactRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	artifact, err := run(c.Request.Context(), c.Param("id"), req.Documents, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, artifact)
}
