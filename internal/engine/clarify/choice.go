package clarify

import (
	"regexp"
	"strconv"
	"strings"

	"jobtrack-commands/internal/engine/normalize"
	"jobtrack-commands/internal/models"
)

// Resolution methods, reported on the clarifications_resolved_total metric.
const (
	MethodID      = "id"
	MethodOrdinal = "ordinal"
	MethodFuzzy   = "fuzzy"
)

var (
	hexIDPattern   = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	indexPattern   = regexp.MustCompile(`(?i)\b(?:pick|option|choose|select|number)\s*#?\s*(\d+)\b`)
	bareNumber     = regexp.MustCompile(`^\s*#?(\d+)\s*$`)
	ordinalToIndex = map[string]int{"first": 0, "second": 1, "third": 2, "fourth": 3, "fifth": 4}
)

// ResolveChoice maps a free-form choice onto one of the stored options.
// Rules are attempted in strict order, first match wins:
//  1. the choice is syntactically a record identifier and matches an option
//  2. the choice is an ordinal word or a textual index ("pick 2"), 1-based
//  3. fuzzy: +2 if an option's company contains the choice, +1 if its title
//     does; the highest positive score wins, ties keep the first
//
// Returns the option index, the method that matched, and whether anything did.
func ResolveChoice(choice string, options []models.CandidateOption) (int, string, bool) {
	choice = strings.TrimSpace(choice)
	if choice == "" || len(options) == 0 {
		return 0, "", false
	}

	if isRecordID(choice) {
		for i, opt := range options {
			if strings.EqualFold(opt.JobID, choice) {
				return i, MethodID, true
			}
		}
		// id-shaped but unknown: fall through
	}

	if idx, ok := parseOrdinal(choice); ok && idx < len(options) {
		return idx, MethodOrdinal, true
	}

	if idx, ok := fuzzyMatch(choice, options); ok {
		return idx, MethodFuzzy, true
	}

	return 0, "", false
}

func isRecordID(s string) bool {
	return hexIDPattern.MatchString(s) || uuidPattern.MatchString(s)
}

// parseOrdinal reads "second", "pick 2", "option 3", or a bare "2" as a
// 1-based index. Out-of-range values fail here and fall through to fuzzy.
func parseOrdinal(choice string) (int, bool) {
	lowered := strings.ToLower(choice)
	for word, idx := range ordinalToIndex {
		if strings.Contains(lowered, word) {
			return idx, true
		}
	}

	var digits string
	if m := indexPattern.FindStringSubmatch(choice); m != nil {
		digits = m[1]
	} else if m := bareNumber.FindStringSubmatch(choice); m != nil {
		digits = m[1]
	}
	if digits == "" {
		return 0, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

func fuzzyMatch(choice string, options []models.CandidateOption) (int, bool) {
	needle := normalize.Fold(choice)
	best, bestIdx := 0, 0
	for i, opt := range options {
		score := 0
		if strings.Contains(normalize.Fold(opt.Company), needle) {
			score += 2
		}
		if opt.Title != "" && strings.Contains(normalize.Fold(opt.Title), needle) {
			score++
		}
		if score > best {
			best, bestIdx = score, i
		}
	}
	return bestIdx, best > 0
}
