package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	// CatalogVersionHeader carries the requirement catalog version validations ran against.
	CatalogVersionHeader = "X-Document-Catalog-Version"

	catalogVersionContextKey = "catalog_version"
)

type versionedCatalog interface {
	Version() string
}

// CatalogVersion annotates responses with the active requirement catalog version.
func CatalogVersion(cat versionedCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cat != nil {
			version := cat.Version()
			if version != "" {
				c.Writer.Header().Set(CatalogVersionHeader, version)
				c.Set(catalogVersionContextKey, version)
			}
		}
		c.Next()
	}
}

// CatalogVersionFrom extracts the version stored by CatalogVersion.
func CatalogVersionFrom(c *gin.Context) string {
	if value, exists := c.Get(catalogVersionContextKey); exists {
		if typed, ok := value.(string); ok {
			return typed
		}
	}
	return ""
}
