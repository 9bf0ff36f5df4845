package handlers

import (
	"net/http"

	"github.com/eargollo/ppfinder/internal/mods"
)

type modCombination struct {
	Bitmask uint32   `json:"bitmask"`
	Mods    []string `json:"mods"`
}

// Mods handles GET /api/mods: every valid mod combination in index order.
func Mods(w http.ResponseWriter, r *http.Request) {
	combos := mods.Combinations()
	out := make([]modCombination, len(combos))
	for i, m := range combos {
		out[i] = modCombination{Bitmask: uint32(m), Mods: m.Codes()}
	}
	writeJSON(w, http.StatusOK, out)
}
