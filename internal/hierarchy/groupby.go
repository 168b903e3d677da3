package hierarchy

// GroupBy merges items sharing a non-empty key. The first item seen for a key
// becomes the group and later ones are folded into it with merge. Items with
// an empty key never merge: each gets the next value of a counter that starts
// at 1 for every call. Synthetic keys live apart from real ones, so a record
// whose UID happens to be "1" is not mixed with the first keyless record.
//
// Groups come back in the order their key was first seen.
func GroupBy[T any](items []T, key func(T) string, merge func(dst *T, src T)) []T {
	type groupKey struct {
		synthetic bool
		value     string
		counter   int
	}
	counter := 1
	index := make(map[groupKey]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := groupKey{value: key(item)}
		if k.value == "" {
			k = groupKey{synthetic: true, counter: counter}
			counter++
		}
		if i, ok := index[k]; ok {
			merge(&out[i], item)
			continue
		}
		index[k] = len(out)
		out = append(out, item)
	}
	return out
}
