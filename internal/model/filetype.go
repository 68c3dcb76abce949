package model

import (
	"mime"
	"path/filepath"
	"strings"
)

var codeExtensions = map[string]struct{}{
	"py": {}, "js": {}, "ts": {}, "tsx": {}, "jsx": {}, "java": {}, "go": {},
	"rs": {}, "c": {}, "cpp": {}, "h": {}, "rb": {}, "php": {}, "swift": {},
	"kt": {}, "cs": {}, "scala": {}, "sh": {}, "bash": {}, "zsh": {},
	"css": {}, "scss": {}, "less": {}, "sql": {}, "yaml": {}, "yml": {},
	"toml": {}, "json": {}, "xml": {}, "ini": {}, "cfg": {}, "conf": {},
	"dockerfile": {}, "makefile": {},
}

// Ext returns the lowercase extension of name without the dot.
func Ext(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return strings.TrimPrefix(ext, ".")
}

// BaseName strips the final extension from name.
func BaseName(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		return name[:len(name)-len(ext)]
	}
	return name
}

// DetectFileType buckets a file by extension and MIME type.
// HTML files are view files; everything else is plain data.
func DetectFileType(mimeType, name string) string {
	ext := Ext(name)
	switch ext {
	case "html", "htm":
		return FileTypeView
	case "md", "markdown", "txt", "rst", "doc", "docx", "rtf":
		return FileTypeDocument
	case "pdf":
		return FileTypePDF
	case "csv", "xls", "xlsx", "tsv":
		return FileTypeSpreadsheet
	}
	if _, ok := codeExtensions[ext]; ok || strings.HasPrefix(mimeType, "text/x-") {
		return FileTypeCode
	}
	if strings.HasPrefix(mimeType, "image/") {
		return FileTypeImage
	}
	if mimeType == "application/pdf" {
		return FileTypePDF
	}
	return FileTypeOther
}

// DetectMimeType guesses a MIME type from the file name.
func DetectMimeType(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		if m := mime.TypeByExtension(ext); m != "" {
			// Strip any "; charset=..." suffix for a stable stored value.
			if i := strings.Index(m, ";"); i >= 0 {
				m = strings.TrimSpace(m[:i])
			}
			return m
		}
	}
	return "application/octet-stream"
}
