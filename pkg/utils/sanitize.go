package utils

import (
	"regexp"
	"strings"
	"time"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Characters invalid in Windows/Unix filenames
var consecutiveUnderscores = regexp.MustCompile(`_+`)
const maxFilenameLength = 100

// SanitizeFilename cleans a string to be safe for use as a filename component
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ ")

	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(sanitized[:maxFilenameLength], "_ ")
	}
	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// ReportFilename builds the default file name for a saved report, e.g.
// "example.com_8080-20260102T150405Z.json".
func ReportFilename(host, ext string, finishedAt time.Time) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	switch ext {
	case "":
		ext = "json"
	case "markdown":
		ext = "md"
	}
	return SanitizeFilename(host) + "-" + finishedAt.UTC().Format("20060102T150405Z") + "." + ext
}
