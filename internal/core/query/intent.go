package query

import (
	"strings"
	"unicode"

	"github.com/agenthands/argus/internal/core/model"
)

var relationshipCues = []string{
	"linked", "link", "links", "connected", "connection", "connections", "connects",
	"related", "relation", "relationship", "relationships", "between", "associated",
	"association", "associates", "path", "paths", "ties", "tied", "network",
	"knows", "know", "affiliated", "affiliation", "works with", "worked with", "paid", "transferred",
}

var lookupCues = []string{
	"who is", "who's", "what is", "what's", "tell me about", "details", "detail",
	"profile", "lookup", "look up", "show", "find", "describe", "information on", "info on",
}

// Classify picks the query intent from keyword cues. resolved are the entities whose names
// occur in the text.
func Classify(text string, resolved []model.Entity) model.Intent {
	words := tokenize(text)
	if hasCue(words, relationshipCues) {
		return model.IntentRelationship
	}
	if len(resolved) == 0 {
		return model.IntentOpen
	}
	if hasCue(words, lookupCues) || coversText(words, resolved) {
		return model.IntentEntityLookup
	}
	return model.IntentOpen
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// hasCue matches single and multi-word cues on token boundaries.
func hasCue(words []string, cues []string) bool {
	joined := " " + strings.Join(words, " ") + " "
	for _, c := range cues {
		if strings.Contains(joined, " "+c+" ") {
			return true
		}
	}
	return false
}

// coversText reports whether the query is little more than an entity name.
func coversText(words []string, resolved []model.Entity) bool {
	for _, e := range resolved {
		for _, name := range append([]string{e.Name}, e.Aliases...) {
			if n := len(tokenize(name)); n > 0 && len(words)-n <= 1 {
				return true
			}
		}
	}
	return false
}
