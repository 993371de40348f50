package server

import (
	"path"
	"strings"
)

// Preview and edit gating: extension allowlists plus byte caps. Anything
// outside the lists is only downloadable.
const (
	previewMaxBytes = 200 * 1024
	editMaxBytes    = 1 << 20
)

var previewableExtensions = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".ini": true, ".csv": true, ".xml": true,
	".html": true, ".css": true, ".js": true, ".ts": true, ".go": true,
	".py": true, ".rb": true, ".sh": true, ".sql": true, ".conf": true,
	".env": true, ".gitignore": true,
}

var editableExtensions = previewableExtensions

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".bmp": true, ".ico": true,
}

func isPreviewable(name string) bool {
	return previewableExtensions[strings.ToLower(path.Ext(name))]
}

func isEditable(name string) bool {
	return editableExtensions[strings.ToLower(path.Ext(name))]
}

func isImage(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}
