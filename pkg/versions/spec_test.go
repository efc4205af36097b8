package versions

import (
	"strings"
	"testing"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		value     string
		wantMajor int
		wantMinor int
		errorMsg  string
	}{
		{value: "3.8", wantMajor: 3, wantMinor: 8},
		{value: "3.x", wantMajor: 3, wantMinor: -1},
		{value: "3", wantMajor: 3, wantMinor: -1},
		{value: " 3.10.4 ", wantMajor: 3, wantMinor: 10},
		{value: "", errorMsg: "cannot be empty"},
		{value: "x", errorMsg: "major version is required"},
		{value: "3.x.1", errorMsg: "wildcard must be the last component"},
		{value: "three", errorMsg: "invalid version spec"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			spec, err := ParseSpec(tt.value)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("ParseSpec(%q) error = %v, want %q", tt.value, err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSpec(%q) error = %v", tt.value, err)
			}
			if spec.Major() != tt.wantMajor || spec.Minor() != tt.wantMinor {
				t.Errorf("ParseSpec(%q) = %d.%d, want %d.%d", tt.value, spec.Major(), spec.Minor(), tt.wantMajor, tt.wantMinor)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		spec    string
		version string
		want    bool
	}{
		{"3.8", "3.8.10", true},
		{"3.8", "Python 3.8.0", true},
		{"3.8", "3.9.1", false},
		{"3.x", "3.12.1", true},
		{"3.x", "2.7.18", false},
		{"3.10", "3.1.0", false},
		{"3.6.15", "3.6.15", true},
		{"3.6.15", "3.6", false},
		{"3", "v3.11.2", true},
	}

	for _, tt := range tests {
		spec, err := ParseSpec(tt.spec)
		if err != nil {
			t.Fatal(err)
		}
		if got := spec.Matches(tt.version); got != tt.want {
			t.Errorf("ParseSpec(%q).Matches(%q) = %v, want %v", tt.spec, tt.version, got, tt.want)
		}
	}
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"3.7", "python3.7,python3,python"},
		{"3.x", "python3.2,python3.1,python3.0,python3,python"},
	}

	for _, tt := range tests {
		spec, _ := ParseSpec(tt.spec)
		if got := strings.Join(spec.Candidates(2), ","); got != tt.want {
			t.Errorf("Candidates(%q) = %q, want %q", tt.spec, got, tt.want)
		}
	}
}

func TestIsPreRelease(t *testing.T) {
	tests := map[string]bool{
		"3.13.0rc1": true,
		"3.12.0a7":  true,
		"v3.12.0b2": true,
		"3.12.1":    false,
		"3.8":       false,
	}

	for version, want := range tests {
		if got := IsPreRelease(version); got != want {
			t.Errorf("IsPreRelease(%q) = %v, want %v", version, got, want)
		}
	}
}
