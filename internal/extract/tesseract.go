package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.logger.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10), // cap at 8KB
		)
	} else {
		r.logger.Debug("exec ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// TesseractExtractor shells out to tesseract for image media types. The OCR
// engine stays an external collaborator; we only stage bytes into a temp
// file and collect stdout.
type TesseractExtractor struct {
	cmd    string
	runner Runner
	logger *slog.Logger
}

var _ TextExtractor = (*TesseractExtractor)(nil)

func NewTesseractExtractor(cmd string, logger *slog.Logger) *TesseractExtractor {
	if cmd == "" {
		cmd = "tesseract"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractExtractor{cmd: cmd, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner; tests use this to avoid spawning
// processes.
func (e *TesseractExtractor) WithRunner(r Runner) *TesseractExtractor {
	e.runner = r
	return e
}

func (e *TesseractExtractor) Extract(ctx context.Context, data []byte, mediaType string) (Result, error) {
	start := time.Now()

	ext := extensionFor(mediaType)
	tmp, err := os.CreateTemp("", "deidpipe-ocr-*"+ext)
	if err != nil {
		return Result{Method: "tesseract"}, fmt.Errorf("stage image: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Result{Method: "tesseract"}, fmt.Errorf("stage image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{Method: "tesseract"}, fmt.Errorf("stage image: %w", err)
	}

	// "stdout" makes tesseract print recognized text instead of writing files.
	stdout, _, err := e.runner.Run(ctx, e.cmd, tmpPath, "stdout")
	if err != nil {
		return Result{Method: "tesseract", Duration: time.Since(start)}, fmt.Errorf("tesseract: %w", err)
	}

	text := strings.TrimSpace(string(stdout))
	res := Result{
		Text:     text,
		OK:       text != "",
		Method:   "tesseract",
		Duration: time.Since(start),
	}
	e.logger.Info("extract.tesseract.done", "media_type", mediaType, "ok", res.OK, "bytes", len(text), "elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}

func extensionFor(mediaType string) string {
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}
