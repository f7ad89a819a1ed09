package core

import (
	"fmt"
	"math"
	"mural_service/internal/domain/model"

	"github.com/lucasb-eyer/go-colorful"
)

// Luma weights applied to the squared channel differences.
const (
	weightR = 0.30
	weightG = 0.59
	weightB = 0.11
)

// RGB is a color with three 8-bit channels.
type RGB struct {
	R, G, B uint8
}

// ParseHex parses "#RRGGBB" or "#RGB"; the leading '#' is optional.
func ParseHex(hex string) (RGB, error) {
	hex = model.NormalizeHex(hex)
	if !model.ValidHex(hex) {
		return RGB{}, fmt.Errorf("invalid hex color %q", hex)
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// Distance is the luma-weighted squared euclidean distance between two colors.
func Distance(a, b RGB) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return weightR*dr*dr + weightG*dg*dg + weightB*db*db
}

// NearestMatch returns the candidate closest to target. On ties the earliest
// candidate wins. Candidates must be non-empty and carry valid hex colors, which
// the catalog guarantees at load time; invalid candidates are skipped.
func NearestMatch(target RGB, candidates []model.CatalogColor) model.CatalogColor {
	var best model.CatalogColor
	minDist := math.MaxFloat64
	for _, candidate := range candidates {
		rgb, err := ParseHex(candidate.HexColor)
		if err != nil {
			continue
		}
		if d := Distance(target, rgb); d < minDist {
			minDist = d
			best = candidate
		}
	}
	return best
}

// NearestMatchHex parses target and resolves it against candidates.
func NearestMatchHex(target string, candidates []model.CatalogColor) (model.CatalogColor, error) {
	rgb, err := ParseHex(target)
	if err != nil {
		return model.CatalogColor{}, err
	}
	return NearestMatch(rgb, candidates), nil
}
