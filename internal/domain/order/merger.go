package order

// MergeResult is the fixed contract of a merge: the surviving order, the
// guest lines that still need inserting under it, and the now-redundant
// order to delete (nil when nothing is discarded).
type MergeResult struct {
	Order         *Order
	LinesToInsert []*Line
	OrderToDelete *Order
}

// MergeStrategy decides, per guest line, whether its quantity folds into a
// matching line of the existing order or is inserted as a new line. The
// strategy only runs when both a guest order and an existing customer order
// are present.
type MergeStrategy interface {
	Merge(guest, existing *Order) MergeResult
}

// MergeLinesStrategy folds guest quantities into the existing order's lines,
// matched by variant, and inserts unmatched guest lines as new lines.
type MergeLinesStrategy struct{}

// Merge implements MergeStrategy.
func (MergeLinesStrategy) Merge(guest, existing *Order) MergeResult {
	var toInsert []*Line
	for _, gl := range guest.Lines {
		if el := existing.LineWithVariant(gl.VariantID); el != nil {
			el.SetQuantity(el.Quantity + gl.Quantity)
			continue
		}
		// The existing order's price snapshot wins for matched lines, so
		// unmatched lines keep the guest's snapshot.
		nl := NewLine(gl.VariantID, gl.UnitPrice, gl.Quantity)
		existing.Lines = append(existing.Lines, nl)
		toInsert = append(toInsert, nl)
	}
	return MergeResult{Order: existing, LinesToInsert: toInsert, OrderToDelete: guest}
}

// UseExistingStrategy keeps the existing customer order untouched and
// discards the guest cart.
type UseExistingStrategy struct{}

// Merge implements MergeStrategy.
func (UseExistingStrategy) Merge(guest, existing *Order) MergeResult {
	return MergeResult{Order: existing, OrderToDelete: guest}
}

// Merger reconciles a guest-session order with a customer's pre-existing
// order at login. The precedence rules are fixed; only the both-exist case
// delegates to the configured strategy.
type Merger struct {
	strategy MergeStrategy
}

// NewMerger creates a Merger with the given strategy.
func NewMerger(strategy MergeStrategy) *Merger {
	return &Merger{strategy: strategy}
}

// Merge applies the precedence rules:
//
//  1. a guest order that already has an owner is not merged; the existing
//     order wins unchanged,
//  2. with no existing customer order the guest order survives as-is
//     (the caller reassigns ownership),
//  3. otherwise the strategy decides.
func (m *Merger) Merge(guest, existing *Order) MergeResult {
	switch {
	case guest == nil:
		return MergeResult{Order: existing}
	case guest.CustomerID != nil:
		if existing == nil {
			return MergeResult{Order: guest}
		}
		return MergeResult{Order: existing}
	case existing == nil:
		return MergeResult{Order: guest}
	default:
		return m.strategy.Merge(guest, existing)
	}
}
