package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
)

// ErrNothingMerged is returned when no source could be incorporated.
var ErrNothingMerged = errors.New("no sources merged")

const (
	a4Width      = 210.0
	a4Height     = 297.0
	pageMargin   = 10.0
	pointsToMM   = 25.4 / 72.0
	mediaBox     = "/MediaBox"
	defaultEdge  = 2480
	tmpFilePrefx = "merge-src-*.pdf"
)

// Source is one payload to append to the merged document.
type Source struct {
	Name     string
	MimeType string
	Data     []byte
}

// Outcome reports what happened to a single source.
type Outcome struct {
	Kind  Kind
	Pages int
	Err   error
}

// Result is the merged document plus per-source outcomes in input order.
type Result struct {
	Data     []byte
	Pages    int
	Outcomes []Outcome
}

// Merged returns how many sources contributed at least one page.
func (r Result) Merged() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil && o.Pages > 0 {
			n++
		}
	}
	return n
}

// Merger concatenates PDFs page-for-page and renders images on A4 pages.
type Merger struct {
	maxEdge int
	tmpDir  string
}

// Option customises the merger.
type Option func(*Merger)

// WithMaxImageEdge bounds the longest image edge in pixels before embedding.
func WithMaxImageEdge(px int) Option {
	return func(m *Merger) {
		if px > 0 {
			m.maxEdge = px
		}
	}
}

// WithTempDir sets where PDF sources are spooled for page import.
func WithTempDir(dir string) Option {
	return func(m *Merger) { m.tmpDir = dir }
}

// NewMerger constructs a merger.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{maxEdge: defaultEdge}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge appends every source in order. A source that cannot be read is recorded in
// its Outcome and skipped; ErrNothingMerged is returned when every source fails.
func (m *Merger) Merge(sources []Source) (Result, error) {
	result := Result{Outcomes: make([]Outcome, len(sources))}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(true)
	doc.SetAutoPageBreak(false, 0)
	importer := gofpdi.NewImporter()

	for i, src := range sources {
		kind := DetectKind(src.MimeType, src.Data)
		outcome := Outcome{Kind: kind}
		switch {
		case len(src.Data) == 0:
			outcome.Err = fmt.Errorf("%s: empty payload", src.Name)
		case kind == KindPDF:
			outcome.Pages, outcome.Err = m.appendPDF(doc, importer, src)
		case kind.IsImage():
			outcome.Pages, outcome.Err = m.appendImage(doc, i, src)
		default:
			outcome.Err = fmt.Errorf("%s: unsupported content type %q", src.Name, src.MimeType)
		}
		if outcome.Err == nil {
			result.Pages += outcome.Pages
		}
		result.Outcomes[i] = outcome
	}

	if result.Pages == 0 {
		return result, ErrNothingMerged
	}
	if err := doc.Error(); err != nil {
		return result, fmt.Errorf("render merged pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return result, fmt.Errorf("render merged pdf: %w", err)
	}
	result.Data = buf.Bytes()
	return result, nil
}

func (m *Merger) appendImage(doc *gofpdf.Fpdf, index int, src Source) (int, error) {
	img, err := normalizeImage(src.Data, m.maxEdge)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src.Name, err)
	}

	orientation := "P"
	pageW, pageH := a4Width, a4Height
	if img.width > img.height {
		orientation = "L"
		pageW, pageH = a4Height, a4Width
	}

	name := "img-" + strconv.Itoa(index)
	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	info := doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.data))
	if err := doc.Error(); err != nil || info == nil {
		doc.ClearError()
		return 0, fmt.Errorf("%s: register image: %v", src.Name, err)
	}

	boxW, boxH := pageW-2*pageMargin, pageH-2*pageMargin
	scale := boxW / float64(img.width)
	if s := boxH / float64(img.height); s < scale {
		scale = s
	}
	w, h := float64(img.width)*scale, float64(img.height)*scale

	doc.AddPageFormat(orientation, gofpdf.SizeType{Wd: a4Width, Ht: a4Height})
	doc.ImageOptions(name, (pageW-w)/2, (pageH-h)/2, w, h, false, opts, 0, "")
	return 1, nil
}

func (m *Merger) appendPDF(doc *gofpdf.Fpdf, importer *gofpdi.Importer, src Source) (int, error) {
	path, cleanup, err := m.spool(src.Data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src.Name, err)
	}
	defer cleanup()

	// Probe on a scratch document first; the importer panics on malformed input
	// and a half-imported source would poison the merged output.
	sizes, err := probePDF(path)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src.Name, err)
	}

	pages := 0
	err = guard(func() {
		for pageNo := 1; pageNo <= len(sizes); pageNo++ {
			w, h := pageSize(sizes, pageNo)
			tpl := importer.ImportPage(doc, path, pageNo, mediaBox)
			doc.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
			importer.UseImportedTemplate(doc, tpl, 0, 0, w, h)
			pages++
		}
	})
	if err != nil {
		return pages, fmt.Errorf("%s: import pages: %w", src.Name, err)
	}
	return pages, nil
}

func (m *Merger) spool(data []byte) (string, func(), error) {
	f, err := os.CreateTemp(m.tmpDir, tmpFilePrefx)
	if err != nil {
		return "", func() {}, fmt.Errorf("spool pdf: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("spool pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("spool pdf: %w", err)
	}
	return filepath.Clean(path), cleanup, nil
}

func probePDF(path string) (map[int]map[string]map[string]float64, error) {
	var sizes map[int]map[string]map[string]float64
	err := guard(func() {
		scratch := gofpdf.New("P", "mm", "A4", "")
		imp := gofpdi.NewImporter()
		imp.ImportPage(scratch, path, 1, mediaBox)
		sizes = imp.GetPageSizes()
	})
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("read pdf: no pages")
	}
	return sizes, nil
}

// pageSize converts the source page box from points into millimetres, falling back to A4.
func pageSize(sizes map[int]map[string]map[string]float64, pageNo int) (float64, float64) {
	box, ok := sizes[pageNo][mediaBox]
	if !ok || box["w"] <= 0 || box["h"] <= 0 {
		return a4Width, a4Height
	}
	return box["w"] * pointsToMM, box["h"] * pointsToMM
}

func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}
