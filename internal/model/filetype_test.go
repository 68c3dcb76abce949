package model

import "testing"

func TestDetectFileType(t *testing.T) {
	for _, tc := range []struct {
		name string
		mime string
		want string
	}{
		{"report.csv", "text/csv", FileTypeSpreadsheet},
		{"notes.md", "text/markdown", FileTypeDocument},
		{"index.html", "text/html", FileTypeView},
		{"main.go", "text/x-go", FileTypeCode},
		{"photo.jpg", "image/jpeg", FileTypeImage},
		{"paper.pdf", "application/pdf", FileTypePDF},
		{"blob.bin", "application/octet-stream", FileTypeOther},
	} {
		if got := DetectFileType(tc.mime, tc.name); got != tc.want {
			t.Errorf("DetectFileType(%s, %s) = %s, want %s", tc.mime, tc.name, got, tc.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	if got := BaseName("budget.csv"); got != "budget" {
		t.Errorf("BaseName(budget.csv) = %q", got)
	}
	if got := BaseName("no-extension"); got != "no-extension" {
		t.Errorf("BaseName(no-extension) = %q", got)
	}
	if got := BaseName("archive.tar.gz"); got != "archive.tar" {
		t.Errorf("BaseName(archive.tar.gz) = %q", got)
	}
}
