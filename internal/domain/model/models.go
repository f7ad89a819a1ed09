package model

// CatalogColor is a single coloring-agent product of a vendor's product line.
type CatalogColor struct {
	Vendor      string `json:"vendor"`
	ProductLine string `json:"product_line"`
	DisplayName string `json:"display_name"`
	Code        string `json:"code"`
	HexColor    string `json:"hex_color"`
}

// ColorKey identifies a catalog color.
type ColorKey struct {
	Vendor      string
	ProductLine string
	Code        string
}

func (c CatalogColor) Key() ColorKey {
	return ColorKey{Vendor: c.Vendor, ProductLine: c.ProductLine, Code: c.Code}
}

// Surface is a physical area to be covered.
type Surface struct {
	ID             string  `json:"id"`
	WidthMeters    float64 `json:"width_meters"`
	HeightMeters   float64 `json:"height_meters"`
	ImageReference *string `json:"image_reference"`
}

// Area returns the surface area in square meters.
func (s Surface) Area() float64 {
	return s.WidthMeters * s.HeightMeters
}

// Ready reports whether the surface can take part in an aggregation run.
func (s Surface) Ready() bool {
	return s.ImageReference != nil && *s.ImageReference != "" && s.WidthMeters > 0 && s.HeightMeters > 0
}

// RawDetection is one color reported by the visual-analysis service for a surface image.
type RawDetection struct {
	ColorName      string  `json:"color_name"`
	HexColor       string  `json:"hex_color"`
	AreaPercentage float64 `json:"area_percentage"`
}

// ResultItem is one line of the purchase list.
type ResultItem struct {
	ColorName           string       `json:"color_name"`
	HexColor            string       `json:"hex_color"`
	PercentageOfProject float64      `json:"percentage_of_project"`
	MatchedColor        CatalogColor `json:"matched_color"`
	UnitsRequired       int          `json:"units_required"`
}

// EstimationState is everything one session owns. A nil Results slice means no
// aggregation has succeeded yet.
type EstimationState struct {
	Surfaces            []Surface    `json:"surfaces"`
	SelectedVendor      string       `json:"selected_vendor"`
	SelectedProductLine string       `json:"selected_product_line"`
	Results             []ResultItem `json:"results"`
	TotalProjectArea    float64      `json:"total_project_area"`
	InProgress          bool         `json:"in_progress"`
	LastError           string       `json:"last_error"`
}

// Clone returns a deep copy of the state.
func (s *EstimationState) Clone() *EstimationState {
	out := *s
	out.Surfaces = make([]Surface, len(s.Surfaces))
	for i, surface := range s.Surfaces {
		if surface.ImageReference != nil {
			ref := *surface.ImageReference
			surface.ImageReference = &ref
		}
		out.Surfaces[i] = surface
	}
	if s.Results != nil {
		out.Results = make([]ResultItem, len(s.Results))
		copy(out.Results, s.Results)
	}
	return &out
}
