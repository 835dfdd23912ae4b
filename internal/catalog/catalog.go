// Package catalog holds the document requirement table shipped with the service.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

// DefaultVersion identifies the built-in requirement table.
const DefaultVersion = "2024.1"

const mb = 1 << 20

// Catalog is an immutable, ordered set of document requirements.
type Catalog struct {
	version string
	entries []models.DocumentRequirement
	byKey   map[string]int
}

// New builds a catalog, normalizing formats and rejecting duplicate keys.
func New(version string, entries []models.DocumentRequirement) (*Catalog, error) {
	c := &Catalog{
		version: version,
		entries: make([]models.DocumentRequirement, 0, len(entries)),
		byKey:   make(map[string]int, len(entries)),
	}
	for _, entry := range entries {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			return nil, fmt.Errorf("catalog entry without key")
		}
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate catalog key %q", key)
		}
		entry.Key = key
		if entry.Label == "" {
			entry.Label = key
		}
		formats := make([]string, 0, len(entry.AllowedFormats))
		for _, f := range entry.AllowedFormats {
			formats = append(formats, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), ".")))
		}
		entry.AllowedFormats = formats
		c.byKey[key] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	return c, nil
}

// MustNew panics on invalid input; used for the compiled-in table.
func MustNew(version string, entries []models.DocumentRequirement) *Catalog {
	c, err := New(version, entries)
	if err != nil {
		panic(err)
	}
	return c
}

// Version returns the catalog version string.
func (c *Catalog) Version() string { return c.version }

// Lookup returns the requirement for key.
func (c *Catalog) Lookup(key string) (models.DocumentRequirement, bool) {
	idx, ok := c.byKey[key]
	if !ok {
		return models.DocumentRequirement{}, false
	}
	return c.entries[idx], true
}

// Label returns the display label for key, falling back to the key itself.
func (c *Catalog) Label(key string) string {
	if req, ok := c.Lookup(key); ok {
		return req.Label
	}
	return key
}

// Entries returns a copy of all requirements in declaration order.
func (c *Catalog) Entries() []models.DocumentRequirement {
	out := make([]models.DocumentRequirement, len(c.entries))
	copy(out, c.entries)
	return out
}

// Required returns the mandatory requirements in declaration order.
func (c *Catalog) Required() []models.DocumentRequirement {
	out := make([]models.DocumentRequirement, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Required {
			out = append(out, e)
		}
	}
	return out
}

// ByCategory groups entries by category with categories sorted by name.
func (c *Catalog) ByCategory() map[models.DocumentCategory][]models.DocumentRequirement {
	out := make(map[models.DocumentCategory][]models.DocumentRequirement)
	for _, e := range c.entries {
		out[e.Category] = append(out[e.Category], e)
	}
	for cat := range out {
		sort.SliceStable(out[cat], func(i, j int) bool { return out[cat][i].Label < out[cat][j].Label })
	}
	return out
}

func years(v float64) *float64 { return &v }

// Default returns the built-in admission document catalog.
func Default() *Catalog {
	return MustNew(DefaultVersion, []models.DocumentRequirement{
		{
			Key:            "passport_photo",
			Label:          "Passport Photo",
			Description:    "Recent colour photograph with a plain background",
			Category:       models.DocumentCategoryIdentity,
			Required:       true,
			AllowedFormats: []string{"jpg", "jpeg", "png", "pdf"},
			MaxSizeBytes:   5 * mb,
			MaxAgeYears:    years(1),
			AspectRatio:    &models.AspectRatio{Width: 35, Height: 45, Tolerance: 0.1},
		},
		{
			Key:            "aadhar_card",
			Label:          "Aadhar Card",
			Description:    "Government issued identity card, both sides",
			Category:       models.DocumentCategoryIdentity,
			Required:       true,
			AllowedFormats: []string{"jpg", "jpeg", "png", "pdf"},
			MaxSizeBytes:   10 * mb,
		},
		{
			Key:            "tenth_marksheet",
			Label:          "10th Marksheet",
			Description:    "Secondary school certificate marksheet",
			Category:       models.DocumentCategoryAcademic,
			Required:       true,
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
			MaxSizeBytes:   10 * mb,
		},
		{
			Key:            "twelfth_marksheet",
			Label:          "12th Marksheet",
			Description:    "Higher secondary certificate marksheet",
			Category:       models.DocumentCategoryAcademic,
			Required:       true,
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
			MaxSizeBytes:   10 * mb,
		},
		{
			Key:            "transfer_certificate",
			Label:          "Transfer Certificate",
			Description:    "Leaving certificate from the last institution attended",
			Category:       models.DocumentCategoryAcademic,
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
			MaxSizeBytes:   10 * mb,
		},
		{
			Key:            "income_certificate",
			Label:          "Income Certificate",
			Description:    "Family income certificate for fee concessions",
			Category:       models.DocumentCategoryFinancial,
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
			MaxSizeBytes:   10 * mb,
			MaxAgeYears:    years(1),
		},
		{
			Key:            "caste_certificate",
			Label:          "Caste Certificate",
			Description:    "Category certificate for reserved seats",
			Category:       models.DocumentCategoryOther,
			AllowedFormats: []string{"pdf", "jpg", "jpeg", "png"},
			MaxSizeBytes:   10 * mb,
			MaxAgeYears:    years(3),
		},
		{
			Key:            "migration_certificate",
			Label:          "Migration Certificate",
			Description:    "Required when moving from another board or university",
			Category:       models.DocumentCategoryAcademic,
			AllowedFormats: []string{"pdf"},
			MaxSizeBytes:   10 * mb,
		},
		{
			Key:            "bank_statement",
			Label:          "Bank Statement",
			Description:    "Last six months of the sponsor's account",
			Category:       models.DocumentCategoryFinancial,
			AllowedFormats: []string{"pdf"},
			MaxSizeBytes:   15 * mb,
			MaxAgeYears:    years(0.5),
		},
	})
}
