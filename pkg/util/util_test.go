package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWithWritePermission(t *testing.T) {
	testCases := []struct {
		name     string
		input    os.FileMode
		expected os.FileMode
	}{
		{
			name:     "Read-only permission",
			input:    0444, // r--r--r--
			expected: 0644, // rw-r--r--
		},
		{
			name:     "Already has write permission",
			input:    0755,
			expected: 0755,
		},
		{
			name:     "No permissions",
			input:    0000,
			expected: 0200,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := WithWritePermission(tc.input)
			if result != tc.expected {
				t.Errorf("expected permission %o, but got %o", tc.expected, result)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got, err := ExpandPath("~/nexus-configs")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if want := filepath.Join(home, "nexus-configs"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got, _ := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expected path without tilde to be unchanged, got %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	if got := NormalizePath("."); got != "" {
		t.Errorf("expected root to normalize to empty string, got %q", got)
	}
	rel := filepath.Join("arcdps", "settings.ini")
	if got := NormalizePath(rel); got != "arcdps/settings.ini" {
		t.Errorf("expected forward-slash path, got %q", got)
	}
}

func TestIsWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "games", "addons")
	testCases := []struct {
		name  string
		child string
		want  bool
	}{
		{"Same directory", root, true},
		{"Nested directory", filepath.Join(root, "backups"), true},
		{"Sibling with shared prefix", root + "-old", false},
		{"Parent directory", filepath.Dir(root), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsWithin(root, tc.child); got != tc.want {
				t.Errorf("IsWithin(%q, %q) = %v, want %v", root, tc.child, got, tc.want)
			}
		})
	}
}
