// Package avatar normalizes uploaded avatar images and stores them under
// content-addressed names.
package avatar

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxDimension bounds the longer side of a stored avatar.
const DefaultMaxDimension = 512

// MaxSourcePixels bounds width*height of an uploaded avatar before it is
// decoded. A few hundred KiB of PNG can describe a gigapixel image.
const MaxSourcePixels = 4096 * 4096

// ContentType is the MIME type of every stored avatar.
const ContentType = "image/png"

// Store persists normalized avatars by name.
type Store interface {
	// Save writes data under name, replacing any existing object.
	Save(ctx context.Context, name string, data []byte) error

	// Open returns a reader for a stored avatar. Missing avatars yield a
	// *domain.NotFoundError.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Normalize checks that data is a PNG, scales it down so neither side exceeds
// maxDim and re-encodes it. Re-encoding drops ancillary chunks, so the same
// picture always normalizes to the same bytes.
func Normalize(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	mt := mimetype.Detect(data)
	if !mt.Is(ContentType) {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("avatar.png is %s, want %s", mt.String(), ContentType)}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("avatar.png cannot be decoded: %v", err)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("avatar.png is %dx%d, at most %d pixels are accepted", cfg.Width, cfg.Height, MaxSourcePixels)}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("avatar.png cannot be decoded: %v", err)}
	}

	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("Normalize: encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// Key returns the content-addressed object name for normalized avatar bytes.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + ".png"
}

// ValidKey reports whether name has the shape produced by Key. Handlers use
// it to reject path tricks before touching a store.
func ValidKey(name string) bool {
	if len(name) != sha256.Size*2+len(".png") || name[sha256.Size*2:] != ".png" {
		return false
	}
	_, err := hex.DecodeString(name[:sha256.Size*2])
	return err == nil
}
