package digitalocean

// Markup is the multiplier applied to provider prices.
const Markup = 1.20

// CalculatePrice applies the markup once. Callers must not feed it an
// already marked-up price.
func CalculatePrice(base float64) float64 {
	return base * Markup
}
