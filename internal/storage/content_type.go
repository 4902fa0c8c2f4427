package storage

import (
	"path/filepath"
	"strings"
)

// contentType подбирает Content-Type по расширению артефакта.
func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".yaml", ".yml":
		return "application/x-yaml"
	default:
		if filepath.Base(path) == "MLmodel" {
			return "application/x-yaml"
		}
		return "application/octet-stream"
	}
}
