// internal/orchestrator/ocr.go
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/GigScrapexter/internal/dispatch"
	"github.com/valpere/GigScrapexter/internal/ocr"
	"github.com/valpere/GigScrapexter/internal/registry"
	"github.com/valpere/GigScrapexter/pkg/types"
)

// ocrEvents handles image-schedule targets: find flyer images and
// schedule PDFs in the fetched page, download them, and run the OCR
// chain or PDF text extraction over them.
func (o *Orchestrator) ocrEvents(ctx context.Context, target *registry.Target, outcome *dispatch.Outcome) []*types.Event {
	logger := o.logger.WithField("target", target.Name)
	if o.deps.OCR == nil || o.deps.Downloader == nil {
		logger.Warnf("image schedule target but OCR is not configured")
		return nil
	}

	workDir, err := os.MkdirTemp("", "gigscrapexter-ocr-")
	if err != nil {
		logger.Errorf("creating OCR work directory: %v", err)
		return nil
	}
	defer os.RemoveAll(workDir)

	seen := make(map[string]bool)
	var events []*types.Event
	for _, page := range outcome.Pages {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
		if err != nil {
			continue
		}

		imagePaths := o.downloadCandidates(ctx, ocr.FindScheduleImages(doc, page.FinalURL), workDir, "img")
		for _, event := range o.deps.OCR.ExtractEvents(ctx, target.Name, target.Name, page.FinalURL, imagePaths) {
			if !seen[event.Key()] {
				seen[event.Key()] = true
				event.FetchMethod = outcome.Method
				events = append(events, event)
			}
		}

		for _, event := range o.pdfEvents(ctx, target, page.FinalURL, ocr.FindPDFLinks(doc, page.FinalURL), workDir) {
			if !seen[event.Key()] {
				seen[event.Key()] = true
				event.FetchMethod = outcome.Method
				events = append(events, event)
			}
		}
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordEventsExtracted(target.Name, "ocr", len(events))
	}
	return events
}

// downloadCandidates fetches scored media URLs into workDir and
// returns the local paths, preserving score order.
func (o *Orchestrator) downloadCandidates(ctx context.Context, candidates []ocr.Candidate, workDir, prefix string) []string {
	var paths []string
	for i, candidate := range candidates {
		data, err := o.deps.Downloader.Download(ctx, candidate.URL)
		if err != nil {
			o.logger.Debugf("downloading %s: %v", candidate.URL, err)
			continue
		}
		path := filepath.Join(workDir, fmt.Sprintf("%s-%d%s", prefix, i, fileExt(candidate.URL)))
		if err := os.WriteFile(path, data, 0600); err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// pdfEvents extracts events from schedule PDFs. PDFs with a text
// layer are parsed directly; scanned ones are rendered to page
// images and handed to the OCR chain.
func (o *Orchestrator) pdfEvents(ctx context.Context, target *registry.Target, sourceURL string, candidates []ocr.Candidate, workDir string) []*types.Event {
	if o.deps.PDF == nil {
		return nil
	}

	var events []*types.Event
	for _, path := range o.downloadCandidates(ctx, candidates, workDir, "pdf") {
		text, err := o.deps.PDF.ExtractText(path)
		if err != nil {
			o.logger.Debugf("extracting PDF text from %s: %v", path, err)
			continue
		}
		if ocr.HasUsableText(text) {
			events = append(events, ocr.ParseScheduleText(text, target.Name, sourceURL, o.now())...)
			continue
		}

		// No text layer; rasterize and OCR the pages.
		renderDir := filepath.Join(workDir, "render-"+filepath.Base(path))
		pages, err := o.deps.PDF.RenderPages(ctx, path, renderDir)
		if err != nil {
			o.logger.Debugf("rendering %s: %v", path, err)
			continue
		}
		events = append(events, o.deps.OCR.ExtractEvents(ctx, target.Name, target.Name, sourceURL, pages)...)
	}
	return events
}

// fileExt returns the extension of a URL's path, ignoring any query
// string.
func fileExt(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return filepath.Ext(u.Path)
	}
	return ""
}
