package version

import (
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"1.0.0", Version{1, 0, 0}},
		{"1.4.2", Version{1, 4, 2}},
		{"2.0.0", Version{2, 0, 0}},
		{"10.23.99", Version{10, 23, 99}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, v, tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"1",
		"1.0",
		"abc",
		"1.0.x",
		"-1.0.0",
		"1.0.0.0",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestParse_Current(t *testing.T) {
	if _, err := Parse(Current); err != nil {
		t.Fatalf("Current version %q does not parse: %v", Current, err)
	}
}

func TestCompatible(t *testing.T) {
	a := Version{1, 0, 0}
	b := Version{1, 9, 3}
	c := Version{2, 0, 0}

	if !a.Compatible(b) {
		t.Error("same major versions should be compatible")
	}
	if a.Compatible(c) {
		t.Error("different major versions should not be compatible")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Version
		want int
	}{
		{Version{1, 0, 0}, Version{1, 0, 0}, 0},
		{Version{1, 0, 0}, Version{1, 0, 1}, -1},
		{Version{1, 1, 0}, Version{1, 0, 9}, 1},
		{Version{2, 0, 0}, Version{1, 9, 9}, 1},
	}

	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
