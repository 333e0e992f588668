// Package sanitize turns arbitrary message text into names that are safe to use
// as a single path component on Windows and POSIX file systems.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	// MaxLength is the maximum number of characters Filename returns.
	MaxLength = 150
	// MaxBytes caps the UTF-8 length so a name plus time prefix and extension
	// stays below the 255 byte name limit of common file systems.
	MaxBytes = 200
	// Fallback is returned when nothing usable is left of the input.
	Fallback = "Invalid_Name"
)

var (
	reservedRun = regexp.MustCompile(`[<>:"/\\|?*]+`)
	control     = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// Filename replaces runs of reserved characters with an underscore, strips
// control characters, trims spaces and dots from both ends and limits the
// result to MaxLength characters and MaxBytes bytes, keeping the extension
// when there is one.
func Filename(raw string) string {
	s := reservedRun.ReplaceAllString(raw, "_")
	s = control.ReplaceAllString(s, "")
	s = trim(s)

	s = shorten([]rune(s), MaxLength, runeCount)
	s = shorten([]rune(s), MaxBytes, byteCount)

	if s == "" {
		return Fallback
	}
	return s
}

func runeCount(r []rune) int { return len(r) }

func byteCount(r []rune) int { return len(string(r)) }

// shorten cuts r until size reports at most limit. With a name.ext split the
// name is cut and the extension kept, as long as it leaves room for a name.
func shorten(r []rune, limit int, size func([]rune) int) string {
	if size(r) <= limit {
		return string(r)
	}
	if dot := lastIndex(r, '.'); dot >= 0 {
		name, tail := r[:dot], r[dot:]
		if room := limit - size(tail); room > 0 {
			for len(name) > 0 && size(name) > room {
				name = name[:len(name)-1]
			}
			if len(name) > 0 {
				return string(name) + string(tail)
			}
		}
	}
	for len(r) > 0 && size(r) > limit {
		r = r[:len(r)-1]
	}
	// a cut can expose a space or dot at the new end
	return trim(string(r))
}

func trim(s string) string {
	return strings.Trim(s, ". ")
}

func lastIndex(r []rune, target rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == target {
			return i
		}
	}
	return -1
}
