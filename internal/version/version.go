// Package version handles the vMAJOR.MINOR.PATCH labels assigned to
// documents when they become authoritative.
package version

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"reviewline/internal/domain"
)

// Default is the label given to the first authoritative document of a system.
const Default = "v1.0.0"

var pattern = regexp.MustCompile(`^v?\d+\.\d+\.\d+$`)

// Label is a parsed version triple.
type Label struct {
	Major int
	Minor int
	Patch int
}

func (l Label) String() string {
	return fmt.Sprintf("v%d.%d.%d", l.Major, l.Minor, l.Patch)
}

// Compare orders labels major, then minor, then patch.
func (l Label) Compare(o Label) int {
	if c := cmpInt(l.Major, o.Major); c != 0 {
		return c
	}
	if c := cmpInt(l.Minor, o.Minor); c != 0 {
		return c
	}
	return cmpInt(l.Patch, o.Patch)
}

// IsValid reports whether s is a well-formed label.
func IsValid(s string) bool {
	return pattern.MatchString(s)
}

// Parse reads a label with or without the leading v.
func Parse(s string) (Label, error) {
	if s == "" {
		return Label{}, fmt.Errorf("%w: version string cannot be empty", domain.ErrInvalidArgument)
	}
	if !IsValid(s) {
		return Label{}, fmt.Errorf("%w: invalid version format %q, expected vMAJOR.MINOR.PATCH (e.g. v1.2.3)", domain.ErrInvalidArgument, s)
	}
	parts := strings.Split(strings.TrimPrefix(s, "v"), ".")
	if len(parts) != 3 {
		return Label{}, fmt.Errorf("%w: invalid version format %q", domain.ErrInvalidArgument, s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Label{}, fmt.Errorf("%w: unable to parse numeric component %q of %q", domain.ErrInvalidArgument, p, s)
		}
		nums[i] = n
	}
	return Label{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Increment bumps the patch component and renders with a forced v prefix.
func Increment(s string) (string, error) {
	l, err := Parse(s)
	if err != nil {
		return "", err
	}
	if l.Patch == math.MaxInt {
		return "", fmt.Errorf("%w: patch version overflow, cannot increment %s", domain.ErrInvalidArgument, s)
	}
	l.Patch++
	return l.String(), nil
}

// Next returns the label following prev. A nil prev means the system has no
// authoritative history yet and yields Default.
func Next(prev *string) (string, error) {
	if prev == nil {
		return Default, nil
	}
	return Increment(*prev)
}

// Compare returns the sign of a-b. Both labels must be valid.
func Compare(a, b string) (int, error) {
	la, err := Parse(a)
	if err != nil {
		return 0, err
	}
	lb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return la.Compare(lb), nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
