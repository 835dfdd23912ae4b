package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth  = 190.0
	labelWidth = 60.0
	maxCellLen = 90
)

// Section is a titled list of label/value pairs.
type Section struct {
	Title  string
	Fields map[string]string
}

// SummaryDocument is the content of an application summary PDF.
type SummaryDocument struct {
	Title       string
	Subtitle    string
	GeneratedAt time.Time
	Sections    []Section
	Tables      []Dataset
}

// PDFExporter renders summary documents into a basic PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderSummary creates a PDF with a header, key/value sections and tables.
func (e *PDFExporter) RenderSummary(doc SummaryDocument) ([]byte, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("summary requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, tr(strings.ToUpper(doc.Title)), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	if !doc.GeneratedAt.IsZero() {
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, "Generated "+doc.GeneratedAt.UTC().Format(time.RFC1123), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, section := range doc.Sections {
		renderSection(pdf, tr, section)
	}
	for _, table := range doc.Tables {
		if err := renderTable(pdf, tr, table); err != nil {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderSection(pdf *gofpdf.Fpdf, tr func(string) string, section Section) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, tr(section.Title), "B", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	if len(section.Fields) == 0 {
		pdf.CellFormat(0, 6, "-", "", 1, "", false, 0, "")
		pdf.Ln(2)
		return
	}
	keys := make([]string, 0, len(section.Fields))
	for k := range section.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pdf.CellFormat(labelWidth, 6, tr(humanize(k)), "", 0, "", false, 0, "")
		pdf.MultiCell(pageWidth-labelWidth, 6, tr(section.Fields[k]), "", "", false)
	}
	pdf.Ln(2)
}

func renderTable(pdf *gofpdf.Fpdf, tr func(string) string, data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("pdf table requires at least one header")
	}
	if data.Title != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, tr(data.Title), "", 1, "", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 9)
	colWidth := pageWidth / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(truncate(row[header])), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(3)
	return nil
}

func humanize(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

func truncate(value string) string {
	if len(value) <= maxCellLen {
		return value
	}
	return value[:maxCellLen-3] + "..."
}
