package inventory

// PriceChangeSignificant reports whether a price update moved by more than
// 10% in either direction. A change away from a zero price is always
// significant: there is no base to compare against.
func PriceChangeSignificant(oldPrice, newPrice int64) bool {
	if oldPrice == newPrice {
		return false
	}
	if oldPrice == 0 {
		return true
	}
	diff := newPrice - oldPrice
	if diff < 0 {
		diff = -diff
	}
	// diff/old > 0.10, kept in integer arithmetic
	return diff*10 > oldPrice
}
