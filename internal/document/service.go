package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-pages/internal/invoice"
	"github.com/zombor/invoice-pages/internal/scanning"
)

// DefaultConcurrency is the number of pages scanned in parallel when none is configured
const DefaultConcurrency = 4

// PageSplitter turns one uploaded file into PNG page images
type PageSplitter interface {
	Split(data []byte, contentType string) ([][]byte, error)
}

// IDGenerator generates unique IDs for documents
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles document operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	splitter    PageSplitter
	aggregator  *invoice.Aggregator
	idGenerator IDGenerator
	timeSource  TimeSource
	concurrency int
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage, splitter PageSplitter, aggregator *invoice.Aggregator, concurrency int) *Service {
	return NewServiceWithDeps(db, scanner, storage, splitter, aggregator, concurrency, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, splitter PageSplitter, aggregator *invoice.Aggregator, concurrency int, idGen IDGenerator, timeSrc TimeSource) *Service {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if aggregator == nil {
		aggregator = invoice.NewAggregator()
	}
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		splitter:    splitter,
		aggregator:  aggregator,
		idGenerator: idGen,
		timeSource:  timeSrc,
		concurrency: concurrency,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	// Keep only alphanumeric, spaces, hyphens, and underscores
	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "invoice"
	}

	return base + ext
}

// ProcessDocument splits the uploads into pages, scans every page, aggregates
// the readable pages into one invoice and saves the validated result.
// Pages are numbered in upload order with PDF pages expanded in place.
func (s *Service) ProcessDocument(ctx context.Context, uploads []Upload) (*Document, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	var images [][]byte
	filenames := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		pages, err := s.splitter.Split(upload.Data, upload.ContentType)
		if err != nil {
			return nil, fmt.Errorf("splitting %s into pages: %w", upload.Filename, err)
		}
		images = append(images, pages...)
		filenames = append(filenames, sanitizeFilename(upload.Filename))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no pages found in upload")
	}

	paths := make([]string, 0, len(images))
	cleanup := func() {
		for _, path := range paths {
			if err := s.storage.Delete(path); err != nil {
				slog.Warn("Failed to delete page image", "path", path, "error", err)
			}
		}
	}

	for i, img := range images {
		path, err := s.storage.Save(fmt.Sprintf("%s_page_%03d.png", id, i+1), img)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("saving page %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}

	results, err := s.scanPages(ctx, images, paths)
	if err != nil {
		cleanup()
		return nil, err
	}

	var scanned, failed []invoice.PageResult
	var pageErrs []error
	for _, page := range results {
		if page.Error != "" {
			failed = append(failed, page)
			pageErrs = append(pageErrs, fmt.Errorf("page %d: %s", page.PageNumber, page.Error))
			continue
		}
		scanned = append(scanned, page)
	}

	if len(scanned) == 0 {
		cleanup()
		return nil, fmt.Errorf("scanning document: every page failed: %w", errors.Join(pageErrs...))
	}

	aggregated, err := s.aggregator.Aggregate(scanned)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("aggregating pages: %w", err)
	}

	doc := &Document{
		ID:          id,
		Filenames:   filenames,
		PageCount:   len(images),
		Pages:       scanned,
		FailedPages: failed,
		Result:      aggregated,
		Validation:  invoice.Validate(aggregated),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveDocument(doc); err != nil {
		cleanup()
		return nil, fmt.Errorf("saving document to database: %w", err)
	}

	slog.Info("Processed document",
		"id", doc.ID,
		"pages", doc.PageCount,
		"failed_pages", len(failed),
		"line_items", len(aggregated.Invoice.LineItems),
		"valid", doc.Validation.IsValid,
		"warnings", len(doc.Validation.Warnings),
	)

	return doc, nil
}

// scanPages extracts every page in parallel. A page the scanner cannot read is
// returned with Error set; only cancellation of ctx fails the whole batch.
func (s *Service) scanPages(ctx context.Context, images [][]byte, paths []string) ([]invoice.PageResult, error) {
	results := make([]invoice.PageResult, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, img := range images {
		g.Go(func() error {
			pageNumber := i + 1
			start := s.timeSource.Now()
			data, err := s.scanner.ScanPage(gctx, img, "image/png")
			page := invoice.PageResult{
				PageNumber:     pageNumber,
				ImageURL:       paths[i],
				ProcessingTime: s.timeSource.Now().Sub(start).Milliseconds(),
			}

			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Error("Failed to scan page",
					"page", pageNumber,
					"file_size", len(img),
					"error", err,
				)
				page.Error = err.Error()
				results[i] = page
				return nil
			}

			page.Data = *data
			page.PageType = s.aggregator.Classify(page.Data, pageNumber, len(images))
			results[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scanning pages: %w", err)
	}
	return results, nil
}

// Aggregate merges caller supplied page results and validates the outcome without saving anything
func (s *Service) Aggregate(pages []invoice.PageResult) (*invoice.AggregatedInvoice, invoice.ValidationResult, error) {
	aggregated, err := s.aggregator.Aggregate(pages)
	if err != nil {
		return nil, invoice.ValidationResult{}, err
	}
	return aggregated, invoice.Validate(aggregated), nil
}

// GetDocument retrieves a document by ID
func (s *Service) GetDocument(id string) (*Document, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all documents
func (s *Service) ListDocuments() ([]*Document, error) {
	docs, err := s.db.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// UpdateInvoice replaces the aggregated invoice with a corrected one and re-validates it
func (s *Service) UpdateInvoice(id string, data invoice.InvoiceData) (*Document, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	if doc.Result == nil {
		return nil, fmt.Errorf("document %s has no aggregated invoice", id)
	}

	if data.LineItems == nil {
		data.LineItems = []invoice.LineItem{}
	}
	doc.Result.Invoice = data
	doc.Validation = invoice.Validate(doc.Result)
	doc.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveDocument(doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	return doc, nil
}

// DeleteDocument removes a document and its page images
func (s *Service) DeleteDocument(id string) error {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return fmt.Errorf("getting document for deletion: %w", err)
	}

	for _, pages := range [][]invoice.PageResult{doc.Pages, doc.FailedPages} {
		for _, page := range pages {
			if err := s.storage.Delete(page.ImageURL); err != nil {
				// Log error but continue with database deletion
				slog.Warn("Failed to delete page image", "path", page.ImageURL, "error", err)
			}
		}
	}

	if err := s.db.DeleteDocument(id); err != nil {
		return fmt.Errorf("deleting document from database: %w", err)
	}
	return nil
}

// GetPageImage retrieves the stored image of one page
func (s *Service) GetPageImage(id string, pageNumber int) ([]byte, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	page, ok := doc.Page(pageNumber)
	if !ok {
		return nil, fmt.Errorf("%w: page %d", ErrPageNotFound, pageNumber)
	}

	data, err := s.storage.Get(page.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("getting page image: %w", err)
	}
	return data, nil
}

// ExportDocument renders a document's aggregated invoice as an XLSX workbook
func (s *Service) ExportDocument(id string) ([]byte, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	data, err := exportWorkbook(doc)
	if err != nil {
		return nil, fmt.Errorf("exporting document: %w", err)
	}
	return data, nil
}
