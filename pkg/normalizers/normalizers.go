// Package normalizers turns raw names and attribute values into stable comparison keys
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("fold", FoldDiacritics)
	Register("slug", Slugify)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
	Register("nationality", Nationality)
	Register("country", Country)
	Register("car_number", CarNumber)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value untouched.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

var lower = cases.Lower(language.Und)

func Lowercase(s string) string {
	return lower.String(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// Letters that do not decompose into a base letter plus a combining mark
var transliterations = strings.NewReplacer(
	"ø", "o", "Ø", "O",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ß", "ss",
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "TH",
	"ı", "i",
)

// FoldDiacritics strips combining marks after canonical decomposition, so "Pérez" becomes "Perez"
func FoldDiacritics(s string) string {
	s = transliterations.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// Slugify lowercases, folds diacritics and collapses every run of non [a-z0-9] characters to one hyphen
func Slugify(s string) string {
	s = Lowercase(FoldDiacritics(s))

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only ASCII letters and digits after folding
func Alphanumeric(s string) string {
	return strings.ReplaceAll(Slugify(s), "-", "")
}

// CarNumber reduces a race number to its digits without leading zeros
func CarNumber(s string) string {
	digits := strings.TrimLeft(DigitsOnly(s), "0")
	if digits == "" && DigitsOnly(s) != "" {
		return "0"
	}
	return digits
}
