// Package heic detects HEIC/HEIF uploads and converts them to JPEG through ImageMagick.
package heic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
)

// IsHEIC - по заявленному типу или по расширению, содержимое не смотрим
func IsHEIC(name, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == model.HEIC || ct == model.HEIF || strings.HasPrefix(ct, "image/heic") || strings.HasPrefix(ct, "image/heif") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".heic" || ext == ".heif"
}

// JPEGName replaces the extension of name with .jpg.
func JPEGName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}

// Runner runs an external command with stdin and returns its stdout.
type Runner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

type Converter struct {
	binary string
	run    Runner
}

func NewConverter(magickPath string) *Converter {
	if magickPath == "" {
		magickPath = "magick"
	}
	return &Converter{binary: magickPath, run: execRunner}
}

// Convert returns the JPEG rendition of a HEIC/HEIF file.
func (c *Converter) Convert(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", model.ErrHEICConversion)
	}

	out, err := c.run(ctx, data, c.binary, "heic:-", "-quality", "92", "jpeg:-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrHEICConversion, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: converter produced no output", model.ErrHEICConversion)
	}
	return out, nil
}

func execRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s is not installed: %w", name, err)
		}
		return nil, fmt.Errorf("%s: %w\noutput: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
