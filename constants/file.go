package constants

import "strings"

// File formats accepted by the upload endpoint.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// AllowedExtensions holds the upload extensions the normalizer can handle.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizedImageName is the canonical raster written into each session
// directory; both /form/render and the extractor coordinate space refer to it.
const NormalizedImageName = "normalized.png"

// SessionArtifactName is the raw parsed field array saved alongside the upload.
const SessionArtifactName = "session.json"

// DefaultDPI is the rasterization resolution for PDF uploads. The extraction
// prompt states this value, so changing it changes the coordinate contract.
const DefaultDPI = 300

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a normalized extension to its file format, or "" when
// the extension is not supported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png":
		return IMAGE
	default:
		return ""
	}
}
