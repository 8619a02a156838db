package service

import (
	"strings"
	"unicode"
)

// cleanText drops invalid UTF-8 and control characters other than line
// breaks and tabs, so model prompts stay valid text.
func cleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)
}
