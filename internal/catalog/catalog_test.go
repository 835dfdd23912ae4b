package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

func TestDefaultCatalogLookups(t *testing.T) {
	c := Default()
	require.Equal(t, DefaultVersion, c.Version())

	photo, ok := c.Lookup("passport_photo")
	require.True(t, ok)
	require.True(t, photo.Required)
	require.Equal(t, int64(5*mb), photo.MaxSizeBytes)
	require.NotNil(t, photo.AspectRatio)

	require.Equal(t, "Aadhar Card", c.Label("aadhar_card"))
	require.Equal(t, "hostel_form", c.Label("hostel_form"))

	required := c.Required()
	require.Len(t, required, 4)
	require.Equal(t, "passport_photo", required[0].Key)
}

func TestNewNormalizesAndRejectsDuplicates(t *testing.T) {
	c, err := New("test", []models.DocumentRequirement{
		{Key: " scan ", AllowedFormats: []string{".PDF", " Png"}},
	})
	require.NoError(t, err)
	entry, ok := c.Lookup("scan")
	require.True(t, ok)
	require.Equal(t, []string{"pdf", "png"}, entry.AllowedFormats)
	require.Equal(t, "scan", entry.Label)

	_, err = New("test", []models.DocumentRequirement{{Key: "a"}, {Key: "a"}})
	require.Error(t, err)

	_, err = New("test", []models.DocumentRequirement{{Key: ""}})
	require.Error(t, err)
}

func TestEntriesReturnsCopy(t *testing.T) {
	c := Default()
	entries := c.Entries()
	entries[0].Label = "changed"
	require.Equal(t, "Passport Photo", c.Label("passport_photo"))

	grouped := c.ByCategory()
	require.Len(t, grouped[models.DocumentCategoryFinancial], 2)
}
