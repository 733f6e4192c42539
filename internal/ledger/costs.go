package ledger

import "github.com/cursorqr/backend/internal/models"

// generationCosts is the fixed price for each QR kind. Costs are never taken
// from the request body; the kind string is the only caller input.
var generationCosts = map[string]int{
	models.KindPhoto: 10,
	models.KindText:  10,
	models.KindURL:   50,
}

// Cost returns the coin price for a QR kind.
func Cost(kind string) (int, bool) {
	c, ok := generationCosts[kind]
	return c, ok
}

// Costs returns a copy of the full cost table.
func Costs() map[string]int {
	out := make(map[string]int, len(generationCosts))
	for k, v := range generationCosts {
		out[k] = v
	}
	return out
}
