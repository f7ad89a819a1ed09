package repository

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"mural_service/internal/domain/model"

	"github.com/lucasb-eyer/go-colorful"
)

//go:embed catalog.json
var embeddedCatalog []byte

type selection struct {
	vendor      string
	productLine string
}

// Catalog is the read-only table of vendor colors. Entries keep the order they
// were loaded in, which is the tie-break order of color matching.
type Catalog struct {
	colors  []model.CatalogColor
	subsets map[selection][]model.CatalogColor
	vendors []string
	lines   map[string][]string
}

// LoadCatalog loads the catalog compiled into the binary.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(embeddedCatalog)
}

// ParseCatalog decodes a JSON array of catalog colors.
func ParseCatalog(data []byte) (*Catalog, error) {
	var colors []model.CatalogColor
	if err := json.Unmarshal(data, &colors); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return NewCatalog(colors)
}

// NewCatalog validates colors and indexes them by vendor and product line.
func NewCatalog(colors []model.CatalogColor) (*Catalog, error) {
	if len(colors) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	c := &Catalog{
		colors:  colors,
		subsets: make(map[selection][]model.CatalogColor),
		lines:   make(map[string][]string),
	}
	seen := make(map[model.ColorKey]struct{}, len(colors))

	for i, color := range colors {
		if color.Vendor == "" || color.ProductLine == "" || color.Code == "" {
			return nil, fmt.Errorf("catalog entry %d: vendor, product line and code are required", i)
		}
		if !model.ValidHex(color.HexColor) {
			return nil, fmt.Errorf("catalog entry %d (%s): invalid hex color %q", i, color.Code, color.HexColor)
		}
		if _, err := colorful.Hex(model.NormalizeHex(color.HexColor)); err != nil {
			return nil, fmt.Errorf("catalog entry %d (%s): invalid hex color %q: %w", i, color.Code, color.HexColor, err)
		}
		key := color.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate code %s in %s %s", i, color.Code, color.Vendor, color.ProductLine)
		}
		seen[key] = struct{}{}

		sel := selection{vendor: color.Vendor, productLine: color.ProductLine}
		if _, ok := c.lines[color.Vendor]; !ok {
			c.vendors = append(c.vendors, color.Vendor)
		}
		if _, ok := c.subsets[sel]; !ok {
			c.lines[color.Vendor] = append(c.lines[color.Vendor], color.ProductLine)
		}
		c.subsets[sel] = append(c.subsets[sel], color)
	}

	return c, nil
}

// Vendors returns the vendor names in catalog order.
func (c *Catalog) Vendors() []string {
	out := make([]string, len(c.vendors))
	copy(out, c.vendors)
	return out
}

// ProductLines returns the product lines of vendor in catalog order.
func (c *Catalog) ProductLines(vendor string) []string {
	lines := c.lines[vendor]
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// Subset returns the colors of one vendor product line.
func (c *Catalog) Subset(vendor, productLine string) ([]model.CatalogColor, error) {
	subset, ok := c.subsets[selection{vendor: vendor, productLine: productLine}]
	if !ok {
		return nil, fmt.Errorf("%w: %s / %s", model.ErrUnknownSelection, vendor, productLine)
	}
	out := make([]model.CatalogColor, len(subset))
	copy(out, subset)
	return out, nil
}

// Find looks up a color by code within a vendor product line.
func (c *Catalog) Find(vendor, productLine, code string) (model.CatalogColor, error) {
	subset, err := c.Subset(vendor, productLine)
	if err != nil {
		return model.CatalogColor{}, err
	}
	for _, color := range subset {
		if color.Code == code {
			return color, nil
		}
	}
	return model.CatalogColor{}, fmt.Errorf("%w: %s", model.ErrColorNotInCatalog, code)
}
