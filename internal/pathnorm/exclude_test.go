package pathnorm

import (
	"reflect"
	"testing"
)

func TestMatchExclude(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		patterns []string
		expected bool
	}{
		{"exact filename", "Movies/Thumbs.db", []string{"Thumbs.db"}, true},
		{"exact filename at root", "Thumbs.db", []string{"Thumbs.db"}, true},
		{"filename glob", "a/b/clip.tmp", []string{"*.tmp"}, true},
		{"resource fork glob", "a/._clip.mkv", []string{"._*"}, true},
		{"full path glob", "a/b/clip.mkv", []string{"a/*/clip.mkv"}, true},
		{"substring directory", "share/@eaDir/x.jpg", []string{"@eaDir"}, true},
		{"backslash path", "a\\b\\Thumbs.db", []string{"Thumbs.db"}, true},
		{"star crosses directories", "Movies/a/b.mkv", []string{"Movies/*"}, true},
		{"star prefix directory", ".Trash-1000/files/x.mkv", []string{".Trash*"}, true},
		{"nested directory glob", "d/.Trash-1000/f", []string{".Trash*"}, true},
		{"star on both sides", "x/cache/y/z.bin", []string{"*/cache/*"}, true},
		{"question mark", "a/b/clip1.mkv", []string{"clip?.mkv"}, true},
		{"character class", "a/b/clip7.mkv", []string{"clip[0-9].mkv"}, true},
		{"negated class", "a/b/clipx.mkv", []string{"clip[!0-9].mkv"}, true},
		{"braces are literal", "a/{x}.mkv", []string{"{x}.mkv"}, true},
		{"braces do not alternate", "a/x.mkv", []string{"{x,y}.mkv"}, false},
		{"broken class falls back to substring", "a/[draft/x.mkv", []string{"[draft"}, true},
		{"other directory untouched", "Series/a/b.mkv", []string{"Movies/*"}, false},
		{"no match", "Movies/film.mkv", []string{"*.tmp", "Thumbs.db"}, false},
		{"empty pattern ignored", "Movies/film.mkv", []string{""}, false},
		{"no patterns", "Movies/film.mkv", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchExclude(tt.path, tt.patterns); got != tt.expected {
				t.Errorf("MatchExclude(%q, %v) = %v, expected %v", tt.path, tt.patterns, got, tt.expected)
			}
		})
	}
}

func TestDefaultExcludePatterns(t *testing.T) {
	for _, p := range []string{"a/.DS_Store", "b/desktop.ini", "c/x@SynoEAStream", "d/.Trash-1000/f"} {
		if !MatchExclude(p, DefaultExcludePatterns) {
			t.Errorf("expected %q to be excluded by defaults", p)
		}
	}
	if MatchExclude("Movies/film.mkv", DefaultExcludePatterns) {
		t.Error("regular media file should not be excluded")
	}
}

func TestMatcherReuse(t *testing.T) {
	m := NewMatcher([]string{"", "*.part", "@eaDir"})
	tests := []struct {
		path     string
		expected bool
	}{
		{"Movies/film.mkv.part", true},
		{"Movies/@eaDir/SYNOINDEX", true},
		{"Movies/film.mkv", false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.path); got != tt.expected {
			t.Errorf("Match(%q) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
	if NewMatcher(nil).Match("anything") {
		t.Error("empty matcher should not match")
	}
}

func TestMergePatterns(t *testing.T) {
	got := MergePatterns([]string{"a", "b"}, []string{"b", " ", "c"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergePatterns = %v, expected %v", got, want)
	}
}
