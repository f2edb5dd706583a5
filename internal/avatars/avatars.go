package avatars

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
)

// Provider derives a default avatar URL for a user. Implementations must be
// deterministic: repeated calls for the same user id yield the same URL, so
// the profile provisioner stays idempotent.
type Provider interface {
	URLFor(ctx context.Context, userID string) (string, error)
}

// DefaultPlaceholderBase is the identicon service used when no object store
// is configured.
const DefaultPlaceholderBase = "https://api.dicebear.com/9.x/identicon/png"

// Placeholder derives avatar URLs from a stateless placeholder service,
// seeding it with a digest of the user id.
type Placeholder struct {
	base string
}

// NewPlaceholder returns a Provider for the given service base URL. An
// empty base falls back to DefaultPlaceholderBase.
func NewPlaceholder(base string) *Placeholder {
	if base == "" {
		base = DefaultPlaceholderBase
	}
	return &Placeholder{base: base}
}

// URLFor returns the placeholder URL for the user. Never fails.
func (p *Placeholder) URLFor(_ context.Context, userID string) (string, error) {
	return fmt.Sprintf("%s?seed=%s", p.base, url.QueryEscape(seed(userID))), nil
}

// seed condenses the user id into a short stable token.
func seed(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:8])
}

const (
	identiconGrid  = 5
	identiconScale = 50
)

// identiconPNG renders a deterministic 5x5 identicon for the user id.
// The digest fixes both the foreground color and the mirrored cell grid.
func identiconPNG(userID string) ([]byte, error) {
	sum := sha256.Sum256([]byte(userID))

	fg := color.NRGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}
	bg := color.NRGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}

	side := identiconGrid * identiconScale
	img := image.NewNRGBA(image.Rect(0, 0, side, side))

	for row := 0; row < identiconGrid; row++ {
		for col := 0; col <= identiconGrid/2; col++ {
			bit := sum[3+row]>>uint(col)&1 == 1
			cell := bg
			if bit {
				cell = fg
			}
			fillCell(img, row, col, cell)
			fillCell(img, row, identiconGrid-1-col, cell)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode identicon: %w", err)
	}
	return buf.Bytes(), nil
}

func fillCell(img *image.NRGBA, row, col int, c color.NRGBA) {
	x0 := col * identiconScale
	y0 := row * identiconScale
	for y := y0; y < y0+identiconScale; y++ {
		for x := x0; x < x0+identiconScale; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}
