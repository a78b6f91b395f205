package process

import (
	"cmp"
	"math"
	"slices"
)

// Rank sorts entries by CPU usage, highest first. Entries with equal usage keep
// their enumeration order. A NaN usage can't be compared to anything, so those
// entries keep their relative order and go after every comparable entry.
func Rank(entries []Entry) {
	slices.SortStableFunc(entries, compareCpuUsage)
}

func compareCpuUsage(a, b Entry) int {
	aNaN, bNaN := math.IsNaN(a.CpuUsage), math.IsNaN(b.CpuUsage)

	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}

	return cmp.Compare(b.CpuUsage, a.CpuUsage)
}

// IsRanked reports whether every adjacent pair is in descending order or incomparable.
func IsRanked(entries []Entry) bool {
	for i := 1; i < len(entries); i++ {
		prev, next := entries[i-1].CpuUsage, entries[i].CpuUsage
		if math.IsNaN(prev) || math.IsNaN(next) {
			continue
		}
		if prev < next {
			return false
		}
	}

	return true
}
