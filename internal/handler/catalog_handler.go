package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

type documentCatalog interface {
	Version() string
	Entries() []models.DocumentRequirement
	Required() []models.DocumentRequirement
	ByCategory() map[models.DocumentCategory][]models.DocumentRequirement
}

// CatalogHandler exposes the document requirement catalog.
type CatalogHandler struct {
	catalog documentCatalog
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(catalog documentCatalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Documents godoc
// @Summary List document requirements
// @Tags Catalog
// @Produce json
// @Param required query bool false "Only mandatory documents"
// @Param groupBy query string false "Set to category to group entries"
// @Success 200 {object} response.Envelope
// @Router /catalog/documents [get]
func (h *CatalogHandler) Documents(c *gin.Context) {
	meta := map[string]interface{}{"version": h.catalog.Version()}
	if strings.EqualFold(c.Query("groupBy"), "category") {
		response.JSON(c, http.StatusOK, h.catalog.ByCategory(), nil, meta)
		return
	}
	entries := h.catalog.Entries()
	if c.Query("required") == "true" {
		entries = h.catalog.Required()
	}
	response.JSON(c, http.StatusOK, entries, nil, meta)
}
