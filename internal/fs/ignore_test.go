package fs

import (
	"slices"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Parallel()

	m := NewIgnoreMatcher([]string{"", "  ", "# uploads in flight", " .tmp-* ", "sub/*.log", "[bad", "Thumbs.db"})
	want := []string{".tmp-*", "Thumbs.db"}
	if !slices.Equal(m.patterns, want) {
		t.Errorf("patterns = %q, want %q", m.patterns, want)
	}
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		filename string
		want     bool
	}{
		{name: "temp upload prefix", patterns: []string{".tmp-*"}, filename: ".tmp-4711", want: true},
		{name: "temp prefix needs the dash", patterns: []string{".tmp-*"}, filename: ".tmpfile", want: false},
		{name: "exact name", patterns: []string{".DS_Store"}, filename: ".DS_Store", want: true},
		{name: "extension glob", patterns: []string{"*.part"}, filename: "movie.mkv.part", want: true},
		{name: "extension glob misses other extension", patterns: []string{"*.part"}, filename: "movie.mkv", want: false},
		{name: "question mark matches one char", patterns: []string{"?.txt"}, filename: "a.txt", want: true},
		{name: "question mark does not match two", patterns: []string{"?.txt"}, filename: "ab.txt", want: false},
		{name: "character class", patterns: []string{"~$*.[dx]*"}, filename: "~$report.docx", want: true},
		{name: "second pattern matches", patterns: []string{"*.part", "Thumbs.db"}, filename: "Thumbs.db", want: true},
		{name: "no patterns", patterns: nil, filename: "anything.txt", want: false},
		{name: "empty filename", patterns: []string{"*"}, filename: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewIgnoreMatcher(tt.patterns).Match(tt.filename); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}
