package utils

import (
	"strings"
)

// GetImageExtension returns the file extension for a given content type.
// Stored media filenames derive their extension from here rather than
// from whatever name the client uploaded.
func GetImageExtension(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".jpg"
	}
}
