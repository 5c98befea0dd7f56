package utils

import (
	"regexp"
	"strings"
)

const maxSlugLen = 64

var nonSlug = regexp.MustCompile("[^a-z0-9]+")

// Slugify lowercases s and collapses every run of other characters into one
// hyphen, for use in download filenames. The result is at most 64 bytes.
func Slugify(s string) string {
	s = nonSlug.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	return s
}
