package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCSVExporterRendersRowsInHeaderOrder(t *testing.T) {
	data := Dataset{Headers: []string{"entry", "type", "status"}}
	data.AddRow("passport_photo_app-1.jpg", "passport_photo", "APPROVED")
	data.AddRow("aadhar_card_app-1.pdf", "aadhar_card")

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	require.Equal(t, "entry,type,status\npassport_photo_app-1.jpg,passport_photo,APPROVED\naadhar_card_app-1.pdf,aadhar_card,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRenderSummary(t *testing.T) {
	docs := Dataset{Title: "Documents", Headers: []string{"Type", "Status"}}
	docs.AddRow("Aadhar Card", "APPROVED")

	out, err := NewPDFExporter().RenderSummary(SummaryDocument{
		Title:       "Application Summary",
		Subtitle:    "app-1",
		GeneratedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Sections: []Section{
			{Title: "Personal Details", Fields: map[string]string{"first_name": "Asha", "last_name": "Rao"}},
			{Title: "Guardian Details"},
		},
		Tables: []Dataset{docs},
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().RenderSummary(SummaryDocument{})
	require.Error(t, err)
}
