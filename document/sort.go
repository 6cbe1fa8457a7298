package document

import (
	"cmp"
	"slices"
	"strings"

	"github.com/witanlabs/witan-assist/internal"
)

type cellClass int

const (
	classNumber cellClass = iota
	classText
	classBlank
)

func classify(v any) (cellClass, float64, string) {
	if v == nil {
		return classBlank, 0, ""
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return classBlank, 0, ""
	}
	if f, ok := internal.ToNumber(v); ok {
		return classNumber, f, ""
	}
	if s, ok := v.(string); ok {
		return classText, 0, strings.ToLower(s)
	}
	if b, ok := v.(bool); ok {
		if b {
			return classText, 0, "true"
		}
		return classText, 0, "false"
	}
	return classText, 0, ""
}

// CompareCells orders two cell values ascending the way spreadsheets do:
// numbers before text, text case-insensitively.
func CompareCells(a, b any) int {
	ca, fa, sa := classify(a)
	cb, fb, sb := classify(b)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}
	switch ca {
	case classNumber:
		return cmp.Compare(fa, fb)
	case classText:
		return strings.Compare(sa, sb)
	default:
		return 0
	}
}

// SortRows stably sorts rows by the value key returns. Blank keys stay last
// in both directions.
func SortRows[T any](rows []T, key func(T) any, ascending bool) {
	slices.SortStableFunc(rows, func(x, y T) int {
		kx, ky := key(x), key(y)
		bx, _, _ := classify(kx)
		by, _, _ := classify(ky)
		if (bx == classBlank) != (by == classBlank) {
			if bx == classBlank {
				return 1
			}
			return -1
		}
		c := CompareCells(kx, ky)
		if !ascending {
			c = -c
		}
		return c
	})
}
