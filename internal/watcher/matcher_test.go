package watcher

import (
	"reflect"
	"testing"
)

func TestMatcher(t *testing.T) {
	m := NewMatcher([]string{
		"/var/lib/dpkg/status",
		"/var/lib/apt/extended_states",
		"/var/lib/apt/lists/*_Packages",
		"",
	})

	wantDirs := []string{"/var/lib/apt", "/var/lib/apt/lists", "/var/lib/dpkg"}
	if got := m.Dirs(); !reflect.DeepEqual(got, wantDirs) {
		t.Errorf("Dirs() = %v, want %v", got, wantDirs)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/var/lib/dpkg/status", true},
		{"/var/lib/dpkg//status", true},
		{"/var/lib/dpkg/status-old", false},
		{"/var/lib/dpkg/lock", false},
		{"/var/lib/apt/extended_states", true},
		{"/var/lib/apt/lists/archive.ubuntu.com_dists_precise_main_binary-amd64_Packages", true},
		{"/var/lib/apt/lists/archive.ubuntu.com_dists_precise_Release", false},
		{"/var/lib/apt/lists/partial/x_Packages", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := m.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
