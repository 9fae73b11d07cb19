// Package location canonicalizes free-text place names.
//
// Alerts and user profiles store the same Key for the same place, which
// is what notification matching compares.
package location

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// UnknownDisplay is the display form of an empty location.
	UnknownDisplay = "Unknown"
	// UnknownKey is the key form of an empty location.
	UnknownKey = "unknown"
)

// Location is a normalized place.
type Location struct {
	Display string
	Key     string
}

// Normalize returns the display and key forms of raw.
func Normalize(raw string) Location {
	cleaned := collapseSpaces(raw)
	if cleaned == "" {
		return Location{Display: UnknownDisplay, Key: UnknownKey}
	}

	key := Key(cleaned)
	if key == "" {
		// punctuation only
		return Location{Display: UnknownDisplay, Key: UnknownKey}
	}

	return Location{
		Display: cases.Title(language.Und).String(cleaned),
		Key:     key,
	}
}

// Key returns only the matching key of raw. It is idempotent.
func Key(raw string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, raw)
	if err != nil {
		folded = raw
	}

	folded = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, folded)

	return collapseSpaces(folded)
}

// KeyOrUnknown is Key with the empty result mapped to UnknownKey.
func KeyOrUnknown(raw string) string {
	return Normalize(raw).Key
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
