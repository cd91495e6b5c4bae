// Package normalize maps free text onto the closed stage enum and provides
// the text-folding helpers the resolver scores with.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"jobtrack-commands/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stageRules is ordered: the first keyword hit wins. The applied rule sits
// after the other stage words because "application" would otherwise match it.
var stageRules = []struct {
	pattern *regexp.Regexp
	stage   models.Stage
}{
	{regexp.MustCompile(`(?i)wish(list)?`), models.StageWishlist},
	{regexp.MustCompile(`(?i)interview(s)?`), models.StageInterview},
	{regexp.MustCompile(`(?i)offer(s)?`), models.StageOffer},
	{regexp.MustCompile(`(?i)appl(ied|y|ed)`), models.StageApplied},
	{regexp.MustCompile(`(?i)archive(d)?|close(d)?|reject(ed)?`), models.StageArchived},
}

var fromToPattern = regexp.MustCompile(`(?i)\bfrom\s+.+?\s+to\s+(.+)$`)

// Stage maps free text to a stage via keyword rules. The second return is
// false when nothing recognizable is present.
func Stage(text string) (models.Stage, bool) {
	if text == "" {
		return "", false
	}
	for _, rule := range stageRules {
		if rule.pattern.MatchString(text) {
			return rule.stage, true
		}
	}
	return "", false
}

// StageFromTranscript infers a target stage from a raw transcript. A
// "from X to Y" pattern prefers Y over anything else in the text.
func StageFromTranscript(transcript string) (models.Stage, bool) {
	if m := fromToPattern.FindStringSubmatch(transcript); m != nil {
		if stage, ok := Stage(m[1]); ok {
			return stage, true
		}
	}
	return Stage(transcript)
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases and strips combining accents so "Résumé" and "resume"
// compare equal.
func Fold(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Canonical folds s and drops every non-alphanumeric rune. Used for the
// loosest containment tier of field scoring.
func Canonical(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
