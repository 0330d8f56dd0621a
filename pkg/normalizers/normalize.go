package normalizers

import (
	"slices"
	"strings"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// NormalizedRecord is the comparison form of a raw name
type NormalizedRecord struct {
	Slug   string
	Tokens []string
}

// Tokens dropped from comparison sets when they carry no identity for the kind.
// The slug always keeps them.
var kindStopwords = map[models.EntityKind]map[string]struct{}{
	models.EntityKindTeam: {
		"team": {}, "f1": {}, "formula": {}, "one": {}, "1": {},
	},
	models.EntityKindCircuit: {
		"circuit": {}, "circuito": {}, "autodromo": {}, "international": {}, "internazionale": {},
		"de": {}, "del": {}, "di": {}, "da": {}, "the": {},
	},
	models.EntityKindSeries: {
		"championship": {}, "series": {}, "the": {},
	},
}

// Normalize produces the slug and sorted, de-duplicated token set for a raw name.
// It is pure: the same input always yields the same output.
func Normalize(rawName string, kind models.EntityKind) (NormalizedRecord, error) {
	if strings.TrimSpace(rawName) == "" {
		return NormalizedRecord{}, domainerrors.New(domainerrors.CodeInvalidRecord, "name is empty")
	}

	slug := Slugify(rawName)
	if slug == "" {
		return NormalizedRecord{}, domainerrors.Newf(domainerrors.CodeInvalidRecord, "name %q has no comparable characters", rawName)
	}

	return NormalizedRecord{Slug: slug, Tokens: tokenize(slug, kind)}, nil
}

func tokenize(slug string, kind models.EntityKind) []string {
	words := strings.Split(slug, "-")
	stop := kindStopwords[kind]

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		tokens = append(tokens, w)
	}
	if len(tokens) == 0 {
		tokens = append(tokens, words...)
	}

	slices.Sort(tokens)
	return slices.Compact(tokens)
}

// Slug is the alias slug for a raw name, or "" when the name has no comparable characters
func Slug(rawName string) string {
	return Slugify(rawName)
}
