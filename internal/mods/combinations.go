package mods

// Conflict is a pair of mods that can never be active together.
type Conflict [2]Mask

// DefaultPool is the set of mods whose presence changes pp.
var DefaultPool = []Mask{Hidden, HardRock, DoubleTime, Flashlight, Easy, HalfTime, NoFail, SpunOut}

// DefaultConflicts are the mutually exclusive pairs within DefaultPool.
var DefaultConflicts = []Conflict{
	{HardRock, Easy},
	{DoubleTime, HalfTime},
}

// ValidCombinations enumerates the power set of pool depth-first, dropping
// every subset that contains both members of a conflict pair. The empty
// combination is always first and the order is deterministic for a given
// pool order.
func ValidCombinations(pool []Mask, conflicts []Conflict) []Mask {
	out := []Mask{0}
	var walk func(current Mask, rest []Mask)
	walk = func(current Mask, rest []Mask) {
		for i, bit := range rest {
			next := current | bit
			if conflicting(next, conflicts) {
				// Any superset conflicts as well.
				continue
			}
			out = append(out, next)
			walk(next, rest[i+1:])
		}
	}
	walk(0, pool)
	return out
}

func conflicting(m Mask, conflicts []Conflict) bool {
	for _, c := range conflicts {
		if m.Has(c[0]) && m.Has(c[1]) {
			return true
		}
	}
	return false
}

var defaultCombinations = ValidCombinations(DefaultPool, DefaultConflicts)

// Combinations returns a copy of the default valid combination list.
func Combinations() []Mask {
	return append([]Mask(nil), defaultCombinations...)
}
