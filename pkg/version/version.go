// Package version provides application version parsing and comparison.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the version announced to peers.
const Current = "1.0.0"

// Version represents a parsed "major.minor.patch" version.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// Parse parses a "major.minor.patch" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	nums := make([]uint16, 3)
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil || part == "" {
			return Version{}, fmt.Errorf("invalid version %q: bad component %q", s, part)
		}
		nums[i] = uint16(n)
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String returns the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compatible returns true if the other version has the same major
// version. Peers with incompatible versions still appear in discovery
// but cannot be paired with.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Compare returns -1, 0, or 1 ordering v against other.
func (v Version) Compare(other Version) int {
	pairs := [3][2]uint16{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}
