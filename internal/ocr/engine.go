// internal/ocr/engine.go

// Package ocr recovers schedule data from venues that publish their
// calendar as a flyer image or PDF instead of markup. Recognition
// runs through a chain of external engines with a learned per-target
// preference; PDF schedules get direct text extraction before any
// rasterization.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// DefaultEngineTimeout bounds one recognition call. OCR engines load
// models lazily and the first call on a cold process can take most of
// a minute.
const DefaultEngineTimeout = 90 * time.Second

// Engine performs text recognition on one image file.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Engine names, which are also the persisted preference values.
const (
	EngineEasyOCR   = "easyocr"
	EngineTesseract = "tesseract"
	EnginePaddleOCR = "paddleocr"
)

// CommandEngine shells out to an external OCR tool that prints
// recognized text on stdout. All three supported engines run
// off-process: they are Python or C++ stacks with heavyweight models,
// and a crash in one must not take the scraper down.
type CommandEngine struct {
	name    string
	command string
	args    []string
	timeout time.Duration
	logger  utils.Logger
}

// ImageArg is the placeholder in an engine's argument list that is
// replaced with the image path. Engines without the placeholder get
// the path appended.
const ImageArg = "{image}"

// NewCommandEngine creates an engine that runs the command with the
// image path substituted for ImageArg and reads stdout.
func NewCommandEngine(name, command string, args []string, logger utils.Logger) *CommandEngine {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &CommandEngine{
		name:    name,
		command: command,
		args:    args,
		timeout: DefaultEngineTimeout,
		logger:  logger.WithField("engine", name),
	}
}

// Name returns the engine identifier.
func (e *CommandEngine) Name() string { return e.name }

// Recognize runs the external tool on an image. A missing binary or
// non-zero exit is an ordinary engine failure; the chain moves on.
func (e *CommandEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := make([]string, 0, len(e.args)+1)
	substituted := false
	for _, a := range e.args {
		if a == ImageArg {
			args = append(args, imagePath)
			substituted = true
			continue
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, imagePath)
	}
	cmd := exec.CommandContext(ctx, e.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s on %s: %w (%s)", e.name, imagePath, err, firstLine(stderr.String()))
	}
	e.logger.Debugf("recognized %s in %v (%d bytes)", imagePath, time.Since(start), stdout.Len())
	return stdout.String(), nil
}

// DefaultEngines returns the three supported engines in general
// effectiveness order for Japanese flyer text. Tesseract is invoked
// directly; EasyOCR and PaddleOCR run through their bundled reader
// scripts.
func DefaultEngines(scriptDir string, logger utils.Logger) []Engine {
	return []Engine{
		NewCommandEngine(EngineEasyOCR, "python3", []string{scriptDir + "/easyocr_read.py"}, logger),
		NewCommandEngine(EngineTesseract, "tesseract", []string{ImageArg, "stdout", "-l", "jpn+eng", "--psm", "6"}, logger),
		NewCommandEngine(EnginePaddleOCR, "python3", []string{scriptDir + "/paddleocr_read.py"}, logger),
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
