package core

import (
	"fmt"
	"mural_service/internal/domain/model"
	"strings"
)

// ExportPurchaseOrder renders the results as a plain-text purchase order. The
// output depends only on state.
func ExportPurchaseOrder(state *model.EstimationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vendor: %s\n", state.SelectedVendor)
	fmt.Fprintf(&b, "Product line: %s\n", state.SelectedProductLine)
	fmt.Fprintf(&b, "Total area: %.2f m2\n", state.TotalProjectArea)
	fmt.Fprintf(&b, "Total units: %d\n", TotalUnits(state.Results))
	b.WriteString("\n")
	for _, item := range state.Results {
		fmt.Fprintf(&b, "%s (%s): %d\n", item.ColorName, item.MatchedColor.Code, item.UnitsRequired)
	}
	return b.String()
}
