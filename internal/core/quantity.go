package core

import (
	"fmt"
	"mural_service/internal/domain/model"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortResults orders items by catalog code with digit runs compared numerically,
// so "C2" sorts before "C10".
func SortResults(items []model.ResultItem) {
	// Collators keep internal buffers and are not safe to share.
	c := collate.New(language.Und, collate.Numeric)
	sort.SliceStable(items, func(i, j int) bool {
		return c.CompareString(items[i].MatchedColor.Code, items[j].MatchedColor.Code) < 0
	})
}

func checkIndex(state *model.EstimationState, index int) error {
	if index < 0 || index >= len(state.Results) {
		return fmt.Errorf("%w: %d (have %d items)", model.ErrIndexOutOfRange, index, len(state.Results))
	}
	return nil
}

// AdjustQuantity adds delta to the units of the item at index, never going below zero.
// A zero quantity keeps the item in the list.
func AdjustQuantity(state *model.EstimationState, index, delta int) error {
	if err := checkIndex(state, index); err != nil {
		return err
	}
	units := state.Results[index].UnitsRequired + delta
	if units < 0 {
		units = 0
	}
	state.Results[index].UnitsRequired = units
	return nil
}

// RemoveItem deletes the item at index, keeping the order of the others.
func RemoveItem(state *model.EstimationState, index int) error {
	if err := checkIndex(state, index); err != nil {
		return err
	}
	state.Results = append(state.Results[:index], state.Results[index+1:]...)
	return nil
}

// AddManualColor adds one unit of color. An existing item for the same catalog
// color is incremented in place; otherwise a new item is inserted and the list
// is re-sorted.
func AddManualColor(state *model.EstimationState, color model.CatalogColor) {
	key := color.Key()
	for i := range state.Results {
		if state.Results[i].MatchedColor.Key() == key {
			state.Results[i].UnitsRequired++
			return
		}
	}

	state.Results = append(state.Results, model.ResultItem{
		ColorName:           color.DisplayName,
		HexColor:            color.HexColor,
		PercentageOfProject: 0,
		MatchedColor:        color,
		UnitsRequired:       1,
	})
	SortResults(state.Results)
}

// TotalUnits sums the units over all items.
func TotalUnits(items []model.ResultItem) int {
	total := 0
	for _, item := range items {
		total += item.UnitsRequired
	}
	return total
}
