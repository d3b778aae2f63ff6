package fat

import "testing"

func Test_matchFATName(t *testing.T) {
	docs := DirEntry{
		Name: [8]byte{'D', 'O', 'C', 'S', ' ', ' ', ' ', ' '},
		Ext:  [3]byte{' ', ' ', ' '},
	}
	readme := DirEntry{
		Name: [8]byte{'R', 'E', 'A', 'D', 'M', 'E', ' ', ' '},
		Ext:  [3]byte{'T', 'X', 'T'},
	}

	tests := []struct {
		name    string
		segment string
		entry   DirEntry
		want    bool
	}{
		{name: "exact", segment: "DOCS", entry: docs, want: true},
		{name: "lower case", segment: "docs", entry: docs, want: true},
		{name: "prefix", segment: "DO", entry: docs, want: true},
		{name: "with padding", segment: "DOCS    ", entry: docs, want: true},
		{name: "longer than the name", segment: "DOCSX", entry: docs, want: false},
		{name: "empty", segment: "", entry: docs, want: false},
		{name: "too long", segment: "DOCS        X", entry: docs, want: false},
		{name: "dotted names do not match the raw field", segment: "README.TXT", entry: readme, want: false},
		{name: "raw field with extension", segment: "README  TXT", entry: readme, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchFATName(tt.segment, &tt.entry); got != tt.want {
				t.Errorf("matchFATName(%q) = %v, want %v", tt.segment, got, tt.want)
			}
		})
	}
}
