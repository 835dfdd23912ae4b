package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/admission-portal-api/internal/catalog"
	"github.com/noah-isme/admission-portal-api/internal/models"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/export"
	"github.com/noah-isme/admission-portal-api/pkg/logger"
	"github.com/noah-isme/admission-portal-api/pkg/pdf"
	"github.com/noah-isme/admission-portal-api/pkg/storage"
)

const (
	contentTypePDF      = "application/pdf"
	contentTypeZip      = "application/zip"
	contentTypeCSV      = "text/csv"
	defaultFetchWorkers = 4
	manifestEntryName   = "manifest.csv"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

type documentFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

type applicationReader interface {
	Get(ctx context.Context, id string, actor models.Actor) (*models.Application, error)
	RecordArtifact(ctx context.Context, id string, kind models.ArtifactKind, locator string) error
}

type documentMerger interface {
	Merge(sources []pdf.Source) (pdf.Result, error)
}

// ArtifactConfig tunes artifact assembly.
type ArtifactConfig struct {
	FetchConcurrency int
	DownloadPath     string
}

// ArtifactService assembles approved documents into downloadable artifacts.
type ArtifactService struct {
	apps     applicationReader
	fetcher  documentFetcher
	store    storage.ArtifactStorage
	signer   *storage.SignedURLSigner
	merger   documentMerger
	summary  *export.PDFExporter
	manifest *export.CSVExporter
	catalog  *catalog.Catalog
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ArtifactConfig
	now      func() time.Time
}

// NewArtifactService constructs the assembler.
func NewArtifactService(
	apps applicationReader,
	fetcher documentFetcher,
	store storage.ArtifactStorage,
	signer *storage.SignedURLSigner,
	merger documentMerger,
	cat *catalog.Catalog,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg ArtifactConfig,
) *ArtifactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if merger == nil {
		merger = pdf.NewMerger()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = defaultFetchWorkers
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/artifacts/download"
	}
	return &ArtifactService{
		apps:     apps,
		fetcher:  fetcher,
		store:    store,
		signer:   signer,
		merger:   merger,
		summary:  export.NewPDFExporter(),
		manifest: export.NewCSVExporter(),
		catalog:  cat,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type fetchedDocument struct {
	doc  models.UploadedDocument
	data []byte
	err  error
}

// AssembleCombinedPDF merges the selected approved documents into one PDF.
func (s *ArtifactService) AssembleCombinedPDF(ctx context.Context, id string, refs []string, actor models.Actor) (*models.Artifact, error) {
	start := time.Now()
	app, selected, err := s.prepare(ctx, id, refs, actor)
	if err != nil {
		return nil, err
	}

	fetched := s.fetchAll(ctx, app.ID, selected)
	skipped := make([]models.SkippedDocument, 0)
	sources := make([]pdf.Source, 0, len(fetched))
	sourceDocs := make([]models.UploadedDocument, 0, len(fetched))
	for _, f := range fetched {
		if f.err != nil {
			skipped = append(skipped, skippedDocument(f.doc, f.err))
			continue
		}
		sources = append(sources, pdf.Source{Name: f.doc.FileName, MimeType: f.doc.MimeType, Data: f.data})
		sourceDocs = append(sourceDocs, f.doc)
	}

	var result pdf.Result
	if len(sources) > 0 {
		result, err = s.merger.Merge(sources)
		for i, outcome := range result.Outcomes {
			if outcome.Err != nil {
				s.logSkip(app.ID, sourceDocs[i], outcome.Err)
				skipped = append(skipped, skippedDocument(sourceDocs[i], outcome.Err))
			}
		}
	}
	if len(sources) == 0 || errors.Is(err, pdf.ErrNothingMerged) {
		s.metrics.ObserveAssembly(string(models.ArtifactCombinedPDF), "failed", time.Since(start))
		return nil, assemblyFailed(skipped)
	}
	if err != nil {
		s.metrics.ObserveAssembly(string(models.ArtifactCombinedPDF), "error", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render combined pdf")
	}

	name := fmt.Sprintf("application_%s_documents.pdf", app.ID)
	artifact, err := s.publish(ctx, app.ID, models.ArtifactCombinedPDF, name, contentTypePDF, result.Data)
	if err != nil {
		return nil, err
	}
	artifact.DocumentCount = result.Merged()
	artifact.Skipped = skipped
	s.metrics.ObserveAssembly(string(models.ArtifactCombinedPDF), "ok", time.Since(start))
	return artifact, nil
}

// AssembleZip bundles the selected approved documents, the stored summary and a manifest.
func (s *ArtifactService) AssembleZip(ctx context.Context, id string, refs []string, actor models.Actor) (*models.Artifact, error) {
	start := time.Now()
	app, selected, err := s.prepare(ctx, id, refs, actor)
	if err != nil {
		return nil, err
	}

	fetched := s.fetchAll(ctx, app.ID, selected)
	skipped := make([]models.SkippedDocument, 0)
	manifest := export.Dataset{Headers: []string{"document_id", "document_type", "label", "file_name", "entry", "status", "reason"}}

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	used := make(map[string]int)
	included := 0
	for _, f := range fetched {
		label := s.catalog.Label(f.doc.DocumentType)
		if f.err == nil {
			if kind := pdf.DetectKind(f.doc.MimeType, f.data); kind == pdf.KindUnsupported {
				f.err = fmt.Errorf("unsupported content type %q", f.doc.MimeType)
				s.logSkip(app.ID, f.doc, f.err)
			}
		}
		if f.err != nil {
			skipped = append(skipped, skippedDocument(f.doc, f.err))
			manifest.AddRow(f.doc.ID, f.doc.DocumentType, label, f.doc.FileName, "", "SKIPPED", f.err.Error())
			continue
		}
		entry := zipEntryName(f.doc, f.data, app.ID, used)
		if err := writeZipEntry(zw, entry, f.data, f.doc.UploadedAt); err != nil {
			s.logSkip(app.ID, f.doc, err)
			skipped = append(skipped, skippedDocument(f.doc, err))
			manifest.AddRow(f.doc.ID, f.doc.DocumentType, label, f.doc.FileName, "", "SKIPPED", err.Error())
			continue
		}
		manifest.AddRow(f.doc.ID, f.doc.DocumentType, label, f.doc.FileName, entry, string(f.doc.Status), "")
		included++
	}
	if included == 0 {
		_ = zw.Close()
		s.metrics.ObserveAssembly(string(models.ArtifactZip), "failed", time.Since(start))
		return nil, assemblyFailed(skipped)
	}

	if app.SummaryArtifactLocator != nil && *app.SummaryArtifactLocator != "" {
		data, err := s.store.Read(ctx, *app.SummaryArtifactLocator)
		if err != nil {
			logger.WithContext(ctx, s.logger).Warn("summary not added to bundle", zap.String("application_id", app.ID), zap.Error(err))
		} else if err := writeZipEntry(zw, fmt.Sprintf("application_summary_%s.pdf", app.ID), data, s.now()); err != nil {
			logger.WithContext(ctx, s.logger).Warn("summary not added to bundle", zap.String("application_id", app.ID), zap.Error(err))
		}
	}
	if data, err := s.manifest.Render(manifest); err == nil {
		if err := writeZipEntry(zw, manifestEntryName, data, s.now()); err != nil {
			logger.WithContext(ctx, s.logger).Warn("manifest not added to bundle", zap.String("application_id", app.ID), zap.Error(err))
		}
	}
	if err := zw.Close(); err != nil {
		s.metrics.ObserveAssembly(string(models.ArtifactZip), "error", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise zip")
	}

	name := fmt.Sprintf("application_%s_documents.zip", app.ID)
	artifact, err := s.publish(ctx, app.ID, models.ArtifactZip, name, contentTypeZip, buf.Bytes())
	if err != nil {
		return nil, err
	}
	artifact.DocumentCount = included
	artifact.Skipped = skipped
	s.metrics.ObserveAssembly(string(models.ArtifactZip), "ok", time.Since(start))
	return artifact, nil
}

// GenerateSummary renders the application summary PDF and records its locator.
func (s *ArtifactService) GenerateSummary(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error) {
	start := time.Now()
	app, err := s.apps.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	data, err := s.summary.RenderSummary(s.summaryDocument(app))
	if err != nil {
		s.metrics.ObserveAssembly(string(models.ArtifactSummary), "error", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render summary")
	}
	name := fmt.Sprintf("application_summary_%s.pdf", app.ID)
	artifact, err := s.publish(ctx, app.ID, models.ArtifactSummary, name, contentTypePDF, data)
	if err != nil {
		return nil, err
	}
	artifact.DocumentCount = len(app.ActiveDocuments())
	artifact.Skipped = []models.SkippedDocument{}
	s.metrics.ObserveAssembly(string(models.ArtifactSummary), "ok", time.Since(start))
	return artifact, nil
}

// ResolveDownload validates a download token and reads the artifact it points to.
func (s *ArtifactService) ResolveDownload(ctx context.Context, token string) (*models.ArtifactDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "downloads are not enabled")
	}
	claims, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	data, err := s.store.Read(ctx, claims.Locator)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "artifact not found")
	}
	name := path.Base(claims.Locator)
	return &models.ArtifactDownload{FileName: name, ContentType: contentTypeFor(name), Data: data}, nil
}

// prepare loads the application and resolves the selection before any I/O.
func (s *ArtifactService) prepare(ctx context.Context, id string, refs []string, actor models.Actor) (*models.Application, []models.UploadedDocument, error) {
	app, err := s.apps.Get(ctx, id, actor)
	if err != nil {
		return nil, nil, err
	}
	selected := SelectApprovedDocuments(app, refs)
	if len(selected) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrNoApprovedDocuments, "no approved documents match the selection")
	}
	return app, selected, nil
}

// SelectApprovedDocuments returns the approved active documents matching refs by id or
// type, in application order. Empty refs select every approved document.
func SelectApprovedDocuments(app *models.Application, refs []string) []models.UploadedDocument {
	wanted := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			wanted[ref] = struct{}{}
		}
	}
	out := make([]models.UploadedDocument, 0)
	for _, doc := range app.ActiveDocuments() {
		if doc.Status != models.DocumentStatusApproved {
			continue
		}
		if len(wanted) > 0 {
			_, byID := wanted[doc.ID]
			_, byType := wanted[doc.DocumentType]
			if !byID && !byType {
				continue
			}
		}
		out = append(out, doc)
	}
	return out
}

// fetchAll downloads documents concurrently, keeping results in selection order.
// Individual failures are recorded on the result, never returned.
func (s *ArtifactService) fetchAll(ctx context.Context, appID string, docs []models.UploadedDocument) []fetchedDocument {
	results := make([]fetchedDocument, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, doc := range docs {
		i, doc := i, doc
		results[i].doc = doc
		g.Go(func() error {
			data, err := s.fetcher.Fetch(gctx, doc.StorageLocator)
			if err == nil && len(data) == 0 {
				err = storage.ErrEmptyPayload
			}
			switch {
			case err == nil:
				s.metrics.RecordFetch("ok")
				results[i].data = data
			case errors.Is(err, storage.ErrEmptyPayload):
				s.metrics.RecordFetch("empty")
				results[i].err = err
			default:
				s.metrics.RecordFetch("failed")
				results[i].err = err
			}
			if err != nil {
				s.logSkip(appID, doc, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *ArtifactService) publish(ctx context.Context, appID string, kind models.ArtifactKind, name, contentType string, data []byte) (*models.Artifact, error) {
	locator, err := s.store.Upload(ctx, path.Join(appID, name), data, contentType)
	if err != nil {
		s.metrics.ObserveAssembly(string(kind), "upload_failed", 0)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store artifact")
	}
	if err := s.apps.RecordArtifact(ctx, appID, kind, locator); err != nil {
		logger.WithContext(ctx, s.logger).Warn("artifact locator not recorded",
			zap.String("application_id", appID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	artifact := &models.Artifact{
		Kind:          kind,
		ApplicationID: appID,
		FileName:      name,
		ContentType:   contentType,
		ByteSize:      int64(len(data)),
		Locator:       locator,
		GeneratedAt:   s.now(),
	}
	if s.signer != nil {
		token, expiresAt, err := s.signer.Generate(appID, locator)
		if err != nil {
			logger.WithContext(ctx, s.logger).Warn("download token not generated", zap.String("application_id", appID), zap.Error(err))
		} else {
			artifact.DownloadURL = s.cfg.DownloadPath + "?token=" + url.QueryEscape(token)
			artifact.ExpiresAt = &expiresAt
		}
	}
	logger.WithContext(ctx, s.logger).Info("artifact generated",
		zap.String("application_id", appID),
		zap.String("kind", string(kind)),
		zap.Int64("bytes", artifact.ByteSize),
	)
	return artifact, nil
}

func (s *ArtifactService) summaryDocument(app *models.Application) export.SummaryDocument {
	overview := map[string]string{
		"application_id": app.ID,
		"student_id":     app.StudentID,
		"status":         string(app.Status),
		"current_stage":  string(app.CurrentStage),
		"review_status":  string(app.ReviewStatus.OverallDocumentReviewStatus),
	}
	if app.AgentID != nil {
		overview["agent_id"] = *app.AgentID
	}
	if app.SubmittedAt != nil {
		overview["submitted_at"] = app.SubmittedAt.Format(time.RFC3339)
	}
	if app.ApprovedAt != nil {
		overview["approved_at"] = app.ApprovedAt.Format(time.RFC3339)
	}
	if app.RejectionReason != nil {
		overview["rejection_reason"] = *app.RejectionReason
	}

	docs := export.Dataset{Title: "Documents", Headers: []string{"Document", "File", "Status", "Remarks"}}
	for _, doc := range app.ActiveDocuments() {
		remarks := ""
		if doc.Remarks != nil {
			remarks = *doc.Remarks
		}
		docs.AddRow(s.catalog.Label(doc.DocumentType), doc.FileName, string(doc.Status), remarks)
	}

	return export.SummaryDocument{
		Title:       "Application Summary",
		Subtitle:    fmt.Sprintf("Application %s - %s", app.ID, app.Status),
		GeneratedAt: s.now(),
		Sections: []export.Section{
			{Title: "Overview", Fields: overview},
			{Title: "Personal Details", Fields: flattenSection(app.Sections.Personal)},
			{Title: "Contact Details", Fields: flattenSection(app.Sections.Contact)},
			{Title: "Course Details", Fields: flattenSection(app.Sections.Course)},
			{Title: "Guardian Details", Fields: flattenSection(app.Sections.Guardian)},
		},
		Tables: []export.Dataset{docs},
	}
}

func (s *ArtifactService) logSkip(appID string, doc models.UploadedDocument, err error) {
	s.logger.Warn("document skipped during assembly",
		zap.String("application_id", appID),
		zap.String("document_id", doc.ID),
		zap.String("document_type", doc.DocumentType),
		zap.String("reason", err.Error()),
	)
}

func flattenSection(section models.SectionData) map[string]string {
	out := make(map[string]string, len(section))
	for k, v := range section {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

func skippedDocument(doc models.UploadedDocument, err error) models.SkippedDocument {
	return models.SkippedDocument{DocumentID: doc.ID, DocumentType: doc.DocumentType, Reason: err.Error()}
}

func assemblyFailed(skipped []models.SkippedDocument) error {
	return appErrors.WithDetails(appErrors.ErrAssemblyFailed, "none of the selected documents could be assembled",
		map[string]interface{}{"skipped": skipped})
}

// zipEntryName builds `<type>_<applicationId>.<ext>`, suffixing `_2`, `_3`... on collisions.
func zipEntryName(doc models.UploadedDocument, data []byte, appID string, used map[string]int) string {
	base := strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(doc.DocumentType), "_"), "_")
	if base == "" {
		base = "document"
	}
	base = base + "_" + appID
	ext := documentFileExt(doc)
	if ext == "" {
		ext = pdf.DetectKind(doc.MimeType, data).Extension()
	}
	if ext == "" {
		ext = "bin"
	}
	used[base]++
	if n := used[base]; n > 1 {
		return fmt.Sprintf("%s_%d.%s", base, n, ext)
	}
	return base + "." + ext
}

func documentFileExt(doc models.UploadedDocument) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(doc.FileName)), ".")
	if unsafeNameChars.MatchString(ext) {
		return ""
	}
	return ext
}

func writeZipEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	header := &zip.FileHeader{Name: name, Method: zip.Deflate}
	if !modified.IsZero() {
		header.Modified = modified
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return contentTypePDF
	case ".zip":
		return contentTypeZip
	case ".csv":
		return contentTypeCSV
	default:
		return "application/octet-stream"
	}
}
