package models

import (
	"path"
	"strings"
)

// attachmentTypes lists the attachment extensions an Input accepts.
var attachmentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".avif": "image/avif",
	".apng": "image/apng",
}

// ContentTypeForName maps a file name to its attachment MIME type.
func ContentTypeForName(name string) (string, bool) {
	ct, ok := attachmentTypes[strings.ToLower(path.Ext(name))]
	return ct, ok
}

// ContentTypeForFormat maps an image/* decoder format name to a MIME type.
func ContentTypeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "":
		return ""
	default:
		return "image/" + format
	}
}
