package validation

import (
	"errors"
	"strings"
	"unicode"
)

// maxCityLen bounds path input in runes.
const maxCityLen = 64

var (
	// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")
	// ErrCityTooLong is returned when the city exceeds maxCityLen runes.
	ErrCityTooLong = errors.New("city too long")
	// ErrCityInvalidChars is returned when the city contains disallowed characters.
	ErrCityInvalidChars = errors.New("city contains invalid characters")
	// ErrCityUnknown is returned for a well-formed city that is not configured.
	ErrCityUnknown = errors.New("city is not configured")
)

// ValidateCity trims input, checks its shape (letters, digits, space, hyphen, apostrophe, period)
// and matches it case-insensitively against allowed. It returns the configured spelling so the
// cache key stays canonical. Shape errors map to 400 INVALID_CITY; ErrCityUnknown to 404.
func ValidateCity(input string, allowed []string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if len(r) > maxCityLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	for _, city := range allowed {
		if strings.EqualFold(city, s) {
			return city, nil
		}
	}
	return "", ErrCityUnknown
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', '-', '\'', '.':
		return true
	}
	return false
}
