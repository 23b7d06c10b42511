package lobby

import "github.com/samber/lo"

// Assign picks a continent from pool that is not in taken, uniformly at random.
//
// The caller must read taken and persist the result inside the same critical
// section, otherwise two joiners can be handed the same continent.
//
// Precondition: src must be non-nil.
// Postcondition: Returns a member of pool − taken, or a ResourceExhausted error
// when that set is empty.
func Assign(taken, pool []Continent, src Source) (Continent, error) {
	available := lo.Without(lo.Uniq(pool), taken...)
	if len(available) == 0 {
		return "", errResourceExhausted()
	}
	return available[src.Intn(len(available))], nil
}
