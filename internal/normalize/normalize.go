// Package normalize converts an uploaded document into the single canonical
// raster the rest of the system works against: one RGB PNG per session with
// known pixel dimensions. PDFs are rasterized (first page only) through the
// external pdftoppm binary; raster uploads are decoded and re-encoded as PNG.
package normalize

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/formflow/formflow/constants"
	"github.com/formflow/formflow/internal/common"
)

type Normalizer struct {
	dpi      int
	pdftoppm string
	log      *slog.Logger
}

func New(dpi int, pdftoppmPath string, logger *slog.Logger) *Normalizer {
	if dpi <= 0 {
		dpi = constants.DefaultDPI
	}
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{dpi: dpi, pdftoppm: pdftoppmPath, log: logger}
}

// Result describes the normalized image.
type Result struct {
	Path   string
	Width  int
	Height int
}

// Normalize converts uploadPath into <sessionDir>/normalized.png and returns
// its pixel dimensions. The upload's extension decides the path taken;
// unsupported extensions fail with common.ErrUnsupportedFileType.
func (n *Normalizer) Normalize(ctx context.Context, uploadPath, sessionDir string) (Result, error) {
	start := time.Now()
	dest := filepath.Join(sessionDir, constants.NormalizedImageName)

	switch constants.MapExtToFormat(filepath.Ext(uploadPath)) {
	case constants.PDF:
		if err := n.rasterizePDF(ctx, uploadPath, dest); err != nil {
			return Result{}, err
		}
	case constants.IMAGE:
		if err := reencodePNG(uploadPath, dest); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("%w: %s", common.ErrUnsupportedFileType, filepath.Ext(uploadPath))
	}

	w, h, err := pngDimensions(dest)
	if err != nil {
		return Result{}, common.WrapError(err, "read normalized image")
	}

	n.log.Info("normalize.ok",
		"upload", filepath.Base(uploadPath),
		"width", w, "height", h,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{Path: dest, Width: w, Height: h}, nil
}

// rasterizePDF renders page 1 at the configured DPI. pdftoppm names its
// output with a page suffix, so render to a prefix and move the result.
func (n *Normalizer) rasterizePDF(ctx context.Context, pdfPath, dest string) error {
	prefix := filepath.Join(filepath.Dir(dest), "page")
	args := []string{
		"-png",
		"-r", strconv.Itoa(n.dpi),
		"-f", "1",
		"-l", "1",
		pdfPath,
		prefix,
	}
	cmd := exec.CommandContext(ctx, n.pdftoppm, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pdftoppm failed: %w: %s", err, out)
	}

	rendered, err := findRenderedPage(prefix)
	if err != nil {
		return err
	}
	return os.Rename(rendered, dest)
}

func findRenderedPage(prefix string) (string, error) {
	candidates := []string{
		prefix + "-1.png",
		prefix + "-01.png",
		prefix + "-001.png",
		prefix + "-0001.png",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no rendered page found under %s-*.png", prefix)
}

// reencodePNG decodes any supported raster upload and writes it back out as
// an RGB PNG, so every session image has one format and color model.
func reencodePNG(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode upload: %w", err)
	}

	rgb := image.NewRGBA(img.Bounds())
	draw.Draw(rgb, rgb.Bounds(), img, img.Bounds().Min, draw.Src)

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	return png.Encode(out, rgb)
}

func pngDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
