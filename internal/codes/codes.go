// Package codes holds the numbering rules for printed QR codes: parsing and
// formatting PREFIX-NNN strings and picking the next free numbers for a
// seller prefix.
package codes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const minDigits = 3

var ErrInvalidPrefix = errors.New("invalid_prefix")

// NormalizePrefix upper-cases and validates a seller prefix (2-4 ASCII letters).
func NormalizePrefix(prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if len(prefix) < 2 || len(prefix) > 4 {
		return "", ErrInvalidPrefix
	}
	for _, r := range prefix {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidPrefix
		}
	}
	return prefix, nil
}

// ParseCode returns the numeric suffix of code when it has the exact form
// prefix-digits. Matching is case sensitive; anything else is treated as a
// foreign or legacy code.
func ParseCode(prefix, code string) (int, bool) {
	if prefix == "" || !strings.HasPrefix(code, prefix+"-") {
		return 0, false
	}
	digits := code[len(prefix)+1:]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// SplitCode extracts prefix and number from any well formed code string.
func SplitCode(code string) (string, int, bool) {
	idx := strings.IndexByte(code, '-')
	if idx < 0 {
		return "", 0, false
	}
	prefix := code[:idx]
	if _, err := NormalizePrefix(prefix); err != nil || strings.ToUpper(prefix) != prefix {
		return "", 0, false
	}
	n, ok := ParseCode(prefix, code)
	if !ok {
		return "", 0, false
	}
	return prefix, n, true
}

func FormatCode(prefix string, n int) string {
	return fmt.Sprintf("%s-%0*d", prefix, minDigits, n)
}

// Used is the set of numbers already consumed or reserved under a prefix.
type Used map[int]struct{}

// Collect parses every code in lists that belongs to prefix into a Used set.
func Collect(prefix string, lists ...[]string) Used {
	used := Used{}
	for _, list := range lists {
		for _, code := range list {
			if n, ok := ParseCode(prefix, code); ok {
				used[n] = struct{}{}
			}
		}
	}
	return used
}

func (u Used) Add(n int) { u[n] = struct{}{} }

func (u Used) Has(n int) bool {
	_, ok := u[n]
	return ok
}

// Max returns the largest number in the set, or false when it is empty.
func (u Used) Max() (int, bool) {
	max, found := 0, false
	for n := range u {
		if !found || n > max {
			max, found = n, true
		}
	}
	return max, found
}

// Min returns the smallest number in the set, or false when it is empty.
func (u Used) Min() (int, bool) {
	min, found := 0, false
	for n := range u {
		if !found || n < min {
			min, found = n, true
		}
	}
	return min, found
}

// NextNumber is max(used)+1, or 1 for an empty set.
func NextNumber(used Used) int {
	if max, ok := used.Max(); ok {
		return max + 1
	}
	return 1
}

// Allocate returns n contiguous, strictly increasing code strings starting
// at NextNumber(used).
func Allocate(prefix string, used Used, n int) []string {
	if n <= 0 {
		return nil
	}
	next := NextNumber(used)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, FormatCode(prefix, next+i))
	}
	return out
}

// Range is the inclusive span of numbers assigned to a seller.
type Range struct {
	Start int
	End   int
}

// RangeOf computes the span covered by used.
func RangeOf(used Used) (Range, bool) {
	min, ok := used.Min()
	if !ok {
		return Range{}, false
	}
	max, _ := used.Max()
	return Range{Start: min, End: max}, true
}

// Extend widens r (which may be absent) to cover every number in codes.
func Extend(r *Range, prefix string, codes []string) *Range {
	var out *Range
	if r != nil {
		copied := *r
		out = &copied
	}
	for _, code := range codes {
		n, ok := ParseCode(prefix, code)
		if !ok {
			continue
		}
		if out == nil {
			out = &Range{Start: n, End: n}
			continue
		}
		if n < out.Start {
			out.Start = n
		}
		if n > out.End {
			out.End = n
		}
	}
	return out
}
