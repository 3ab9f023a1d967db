package invoice

// MergeLineItems appends the incoming items that are not exact duplicates of an accumulated item.
// Duplicates match on description, quantity, unit price and total price; category is ignored.
// The inputs are not modified.
func MergeLineItems(existing, incoming []LineItem) []LineItem {
	merged := make([]LineItem, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)

	for _, item := range incoming {
		if !containsLineItem(merged, item) {
			merged = append(merged, item)
		}
	}

	return merged
}

func containsLineItem(items []LineItem, item LineItem) bool {
	for _, existing := range items {
		if existing.Description == item.Description &&
			existing.Quantity == item.Quantity &&
			existing.UnitPrice == item.UnitPrice &&
			existing.TotalPrice == item.TotalPrice {
			return true
		}
	}
	return false
}
