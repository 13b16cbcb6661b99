// internal/ocr/pdf.go
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// PDF pipeline constants. Direct extraction wins whenever a PDF
// carries a real text layer; rasterizing and OCRing it would only
// lose fidelity. Below the negligible-text threshold the PDF is
// treated as image-only and rendered for the OCR chain.
const (
	NegligibleTextLen = 50
	RenderDPI         = 300
	MaxRenderPages    = 5
)

// PDFProcessor extracts schedule text from PDF documents.
type PDFProcessor struct {
	logger utils.Logger
}

// NewPDFProcessor creates a PDF processor.
func NewPDFProcessor(logger utils.Logger) *PDFProcessor {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &PDFProcessor{logger: logger.WithField("component", "pdf")}
}

// ExtractText pulls the text layer out of a PDF via its content
// streams. Returns the concatenated page text; an empty result means
// the PDF is image-only.
func (p *PDFProcessor) ExtractText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return "", fmt.Errorf("reading PDF: %w", err)
	}

	var all strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := extractPageText(ctx, pageNr)
		if pageText == "" {
			continue
		}
		if all.Len() > 0 {
			all.WriteByte('\n')
		}
		all.WriteString(pageText)
	}
	return all.String(), nil
}

// HasUsableText reports whether the extracted text is substantial
// enough to skip rasterization.
func HasUsableText(text string) bool {
	return len(strings.TrimSpace(text)) >= NegligibleTextLen
}

// RenderPages rasterizes the first pages of a PDF to PNG files in
// outDir for the OCR chain. Rendering shells out to pdftoppm, same as
// the OCR engines themselves: page rasterization is a poppler job,
// not something worth reimplementing.
func (p *PDFProcessor) RenderPages(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating render directory: %w", err)
	}
	prefix := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(pdfPath), ".pdf"))

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", fmt.Sprintf("%d", RenderDPI),
		"-l", fmt.Sprintf("%d", MaxRenderPages),
		pdfPath, prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("rendering %s: %w (%s)", pdfPath, err, firstLine(stderr.String()))
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, err
	}
	p.logger.Debugf("rendered %d pages from %s", len(pages), pdfPath)
	return pages, nil
}

// extractPageText extracts text from one page's content stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromContentStream(data)
}

// pdfStringRe matches PDF string literals: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// textFromContentStream walks content stream operators and collects
// the text-showing ones (Tj, TJ, ') with line structure preserved
// well enough for the schedule parser.
func textFromContentStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")), bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanLines(sb.String())
}

// decodePDFString handles basic PDF escape sequences including octal
// escapes.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// cleanLines trims each line and drops non-printable residue while
// keeping line breaks, which the schedule parser depends on.
func cleanLines(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		for _, r := range line {
			if unicode.IsPrint(r) {
				sb.WriteRune(r)
			}
		}
		if trimmed := strings.TrimSpace(sb.String()); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
