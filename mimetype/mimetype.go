// Package mimetype provides the fixed extension-to-MIME-type table and the
// compressible-content-type set used to decide Content-Type and whether a
// response body is eligible for the compression cache.
package mimetype

import "strings"

// OctetStream is the fallback Content-Type for unrecognised or missing
// extensions.
const OctetStream = "application/octet-stream"

// extensionToType is a fixed subset of
// https://developer.mozilla.org/en-US/docs/Web/HTTP/Basics_of_HTTP/MIME_types/Complete_list_of_MIME_types
var extensionToType = map[string]string{
	"aac":    "audio/aac",
	"abw":    "application/x-abiword",
	"arc":    "application/x-freearc",
	"avi":    "video/x-msvideo",
	"azw":    "application/vnd.amazon.ebook",
	"bin":    "application/octet-stream",
	"bmp":    "image/bmp",
	"bz":     "application/x-bzip",
	"bz2":    "application/x-bzip2",
	"csh":    "application/x-csh",
	"css":    "text/css",
	"csv":    "text/csv",
	"doc":    "application/msword",
	"docx":   "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"eot":    "application/vnd.ms-fontobject",
	"epub":   "application/epub+zip",
	"gif":    "image/gif",
	"html":   "text/html",
	"htm":    "text/html",
	"ico":    "image/vnd.microsoft.icon",
	"ics":    "text/calendar",
	"jar":    "application/java-archive",
	"jpeg":   "image/jpeg",
	"jpg":    "image/jpeg",
	"js":     "text/javascript",
	"json":   "application/json",
	"jsonld": "application/ld+json",
	"mid":    "audio/midi",
	"mjs":    "text/javascript",
	"mp3":    "audio/mpeg",
	"mpeg":   "video/mpeg",
	"mpkg":   "application/vnd.apple.installer+xml",
	"odp":    "application/vnd.oasis.opendocument.presentation",
	"ods":    "application/vnd.oasis.opendocument.spreadsheet",
	"odt":    "application/vnd.oasis.opendocument.text",
	"oga":    "audio/ogg",
	"ogv":    "video/ogg",
	"ogx":    "application/ogg",
	"otf":    "font/otf",
	"png":    "image/png",
	"pdf":    "application/pdf",
	"ppt":    "application/vnd.ms-powerpoint",
	"pptx":   "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"rar":    "application/x-rar-compressed",
	"rtf":    "application/rtf",
	"sh":     "application/x-sh",
	"svg":    "image/svg+xml",
	"swf":    "application/x-shockwave-flash",
	"tar":    "application/x-tar",
	"tiff":   "image/tiff",
	"ttf":    "font/ttf",
	"txt":    "text/plain",
	"vsd":    "application/vnd.visio",
	"wav":    "audio/wav",
	"weba":   "audio/webm",
	"webm":   "video/webm",
	"webp":   "image/webp",
	"woff":   "font/woff",
	"woff2":  "font/woff2",
	"xhtml":  "application/xhtml+xml",
	"xls":    "application/vnd.ms-excel",
	"xlsx":   "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xml":    "application/xml",
	"xul":    "application/vnd.mozilla.xul+xml",
	"zip":    "application/zip",
	"3gp":    "video/3gpp",
	"3g2":    "video/3gpp2",
	"7z":     "application/x-7z-compressed",
}

// compressible is the set of Content-Type values eligible for the
// compression cache.
var compressible = map[string]bool{
	"text/html":                     true,
	"text/css":                      true,
	"text/javascript":               true,
	"text/xml":                      true,
	"text/plain":                    true,
	"text/x-component":              true,
	"application/javascript":        true,
	"application/x-javascript":      true,
	"application/json":              true,
	"application/xml":               true,
	"application/rss+xml":           true,
	"application/atom+xml":          true,
	"font/truetype":                 true,
	"font/opentype":                 true,
	"application/vnd.ms-fontobject": true,
	"image/svg+xml":                 true,
}

// ForFilename returns the Content-Type for filename, matching on the
// substring following the last '.' in the basename, case-sensitively, and
// falling back to OctetStream.
func ForFilename(filename string) string {
	if filename == "" {
		return OctetStream
	}
	base := filename
	if idx := strings.LastIndexByte(filename, '/'); idx >= 0 {
		if idx == len(filename)-1 {
			return OctetStream
		}
		base = filename[idx+1:]
	}

	dot := strings.LastIndexByte(base, '.')
	if dot < 0 || dot == len(base)-1 {
		return OctetStream
	}

	if t, ok := extensionToType[base[dot+1:]]; ok {
		return t
	}
	return OctetStream
}

// ShouldCompress reports whether contentType is eligible for the
// compression cache.
func ShouldCompress(contentType string) bool {
	return compressible[contentType]
}
