package pathnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		root     string
		expected string
	}{
		{"root prefix", "NAS-FILMY/Movie/file.mkv", "NAS-FILMY", "Movie/file.mkv"},
		{"root prefix with slashes", "/NAS-FILMY/Movie/file.mkv/", "/NAS-FILMY/", "Movie/file.mkv"},
		{"already relative", "Movie/file.mkv", "NAS-FILMY", "Movie/file.mkv"},
		{"embedded segment", "share/Filmy/Movie/file.mkv", "Filmy", "Movie/file.mkv"},
		{"embedded segment at end", "share/Filmy", "Filmy", ""},
		{"partial segment is not root", "share/Filmy2/Movie/file.mkv", "Filmy", "share/Filmy2/Movie/file.mkv"},
		{"prefix without separator is not root", "NAS-FILMY-OLD/file.mkv", "NAS-FILMY", "NAS-FILMY-OLD/file.mkv"},
		{"path equals root", "NAS-FILMY", "NAS-FILMY", ""},
		{"empty root strips slashes", "/Movie/file.mkv/", "", "Movie/file.mkv"},
		{"multi-segment root", "volume1/video/Filmy/a.mkv", "video/Filmy", "a.mkv"},
		{"double slash after root", "Filmy//a.mkv", "Filmy", "a.mkv"},
		{"empty path", "", "Filmy", ""},
		{"nfd path is composed", "Filmy/Cafe\u0301.mkv", "Filmy", "Caf\u00e9.mkv"},
		{"nfd root matches nfc path", "Zl\u00e9/a.mkv", "Zle\u0301", "a.mkv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.path, tt.root)
			if got != tt.expected {
				t.Errorf("Normalize(%q, %q) = %q, expected %q", tt.path, tt.root, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	cases := []struct{ path, root string }{
		{"NAS-FILMY/Movie/file.mkv", "NAS-FILMY"},
		{"share/Filmy/Movie/file.mkv", "Filmy"},
		{"/a/b/c/", ""},
		{"x/Cafe\u0301/y", "x"},
		{"Filmy//a.mkv", "Filmy"},
		{"unrelated/path.txt", "root"},
	}

	for _, c := range cases {
		once := Normalize(c.path, c.root)
		twice := Normalize(once, "")
		if once != twice {
			t.Errorf("Normalize not idempotent for (%q, %q): %q then %q", c.path, c.root, once, twice)
		}
	}
}

func TestNormalizeRootItself(t *testing.T) {
	for _, r := range []string{"a", "NAS-FILMY", "deep/nested/root", "/slashed/"} {
		if got := Normalize(r, r); got != "" {
			t.Errorf("Normalize(%q, %q) = %q, expected empty", r, r, got)
		}
	}
}

func TestIsIgnored(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"a/.streams/b", true},
		{".streams/file", true},
		{"a/b.mkv:$DATA", true},
		{"a/b.mkv", false},
		{"a/.streamsX/b", false},
		{"a/streams/b", false},
	}

	for _, tt := range tests {
		if got := IsIgnored(tt.path); got != tt.expected {
			t.Errorf("IsIgnored(%q) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}
