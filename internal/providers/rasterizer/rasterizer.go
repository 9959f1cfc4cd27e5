// Package rasterizer renders PDF pages to images for the vision extractor.
package rasterizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
)

// RenderOptions controls rasterization fidelity. The quick scan uses a lower
// DPI than the full extraction to keep the cheap path cheap.
type RenderOptions struct {
	DPI       int
	FirstPage int
	LastPage  int // 0 means through the final page
}

// Rasterizer is the PDF-to-image boundary.
type Rasterizer interface {
	PageCount(ctx context.Context, path string) (int, error)
	RenderPages(ctx context.Context, path string, opts RenderOptions) ([][]byte, error)
}

// PopplerRasterizer shells out to pdftoppm and counts pages with pdfcpu.
type PopplerRasterizer struct {
	log *zap.Logger
}

func NewPopplerRasterizer(logger *zap.Logger) Rasterizer {
	return &PopplerRasterizer{log: logger.Named("rasterizer")}
}

func (r *PopplerRasterizer) PageCount(_ context.Context, path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("rasterizer: page count: %w", err)
	}
	return count, nil
}

func (r *PopplerRasterizer) RenderPages(ctx context.Context, path string, opts RenderOptions) ([][]byte, error) {
	if opts.DPI <= 0 {
		opts.DPI = 200
	}
	if opts.FirstPage <= 0 {
		opts.FirstPage = 1
	}

	tmpDir, err := os.MkdirTemp("", "billscan-pages-*")
	if err != nil {
		return nil, fmt.Errorf("rasterizer: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{
		"-png",
		"-r", fmt.Sprint(opts.DPI),
		"-f", fmt.Sprint(opts.FirstPage),
	}
	if opts.LastPage > 0 {
		args = append(args, "-l", fmt.Sprint(opts.LastPage))
	}
	args = append(args, path, prefix)

	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("rasterizer: pdftoppm: %w: %s", err, out)
	}

	matches, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("rasterizer: no pages rendered from %s", filepath.Base(path))
	}
	sort.Strings(matches)

	pages := make([][]byte, 0, len(matches))
	for _, file := range matches {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("rasterizer: read rendered page: %w", err)
		}
		pages = append(pages, data)
	}

	r.log.Debug("rendered pages",
		zap.String("file", filepath.Base(path)),
		zap.Int("count", len(pages)),
		zap.Int("dpi", opts.DPI))
	return pages, nil
}
