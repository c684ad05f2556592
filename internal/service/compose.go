package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ExtraInput is one added ingredient on a submitted line.
type ExtraInput struct {
	IngredientID uuid.UUID `json:"ingredient_id"`
	Quantity     int32     `json:"quantity"`
}

// LineInput is one submitted order line before validation.
type LineInput struct {
	ProductID  uuid.UUID    `json:"product_id"`
	Quantity   int32        `json:"quantity"`
	Notes      string       `json:"notes"`
	Exclusions []uuid.UUID  `json:"exclusions"`
	Extras     []ExtraInput `json:"extras"`
}

// modKey canonicalizes a line's ingredient-modification set. Two lines merge
// only when their keys are equal, so ordering of the inputs must not matter.
func modKey(productID uuid.UUID, exclusions []uuid.UUID, extras []ExtraInput) string {
	excl := make([]string, len(exclusions))
	for i, id := range exclusions {
		excl[i] = id.String()
	}
	sort.Strings(excl)

	ext := make([]string, len(extras))
	for i, e := range extras {
		ext[i] = fmt.Sprintf("%s*%d", e.IngredientID, e.Quantity)
	}
	sort.Strings(ext)

	return productID.String() + "|-" + strings.Join(excl, ",") + "|+" + strings.Join(ext, ",")
}

func lineResultModKey(lr LineResult) string {
	excl := make([]uuid.UUID, len(lr.Exclusions))
	for i, e := range lr.Exclusions {
		excl[i] = e.IngredientID
	}
	ext := make([]ExtraInput, len(lr.Extras))
	for i, e := range lr.Extras {
		ext[i] = ExtraInput{IngredientID: e.IngredientID, Quantity: e.Quantity}
	}
	return modKey(lr.Line.ProductID, excl, ext)
}

// findMergeTarget returns the existing line the input should collapse into,
// or nil when the customization is new and warrants a distinct line.
func findMergeTarget(existing []LineResult, in LineInput) *LineResult {
	key := modKey(in.ProductID, in.Exclusions, in.Extras)
	for i := range existing {
		if lineResultModKey(existing[i]) == key {
			return &existing[i]
		}
	}
	return nil
}
