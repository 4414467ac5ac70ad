package scanner

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type bounds struct {
	field    string
	min, max int
}

var rangedFields = []bounds{
	{"startPos", 0, 4},
	{"driverRanking", 1, 5},
	{"defenseRanking", 1, 5},
	{"endClimb", 0, 4},
}

// Optional free text, checked only for length.
var textFields = []bounds{
	{"quantifier", 0, 10},
	{"comment", 0, 256},
}

var flagFields = []string{"isBroken", "isDisabled", "isTipped"}

// Validate returns one FieldError per failing field; an empty result means
// the scan can be stored.
func Validate(r Raw) []FieldError {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	checkInt := func(field, label string, max int) {
		switch {
		case strings.TrimSpace(r.String(field)) == "":
			add(field, "%s is required", label)
		default:
			n, ok := r.Int(field)
			if !ok {
				add(field, "%s must be a valid integer", label)
			} else if n <= 0 || n > max {
				add(field, "%s must be between 1 and %d", label, max)
			}
		}
	}
	checkInt("teamNumber", "Team number", 99999)
	checkInt("matchNumber", "Match number", 999)

	checkLen := func(field, label string, min, max int) {
		s := strings.TrimSpace(r.String(field))
		n := utf8.RuneCountInString(s)
		switch {
		case n == 0:
			add(field, "%s is required", label)
		case n < min:
			add(field, "%s must be at least %d characters", label, min)
		case n > max:
			add(field, "%s cannot exceed %d characters", label, max)
		}
	}
	checkLen("name", "Scout name", 2, 32)
	checkLen("comp_code", "Competition code", 3, 16)

	for _, b := range textFields {
		if n := utf8.RuneCountInString(strings.TrimSpace(r.String(b.field))); n > b.max {
			add(b.field, "%s cannot exceed %d characters", b.field, b.max)
		}
	}

	for _, b := range rangedFields {
		if !r.Has(b.field) {
			continue
		}
		n, ok := r.Int(b.field)
		if !ok {
			add(b.field, "%s must be a valid integer", b.field)
		} else if n < b.min || n > b.max {
			add(b.field, "%s must be between %d and %d", b.field, b.min, b.max)
		}
	}

	for _, field := range flagFields {
		if !r.Has(field) {
			continue
		}
		if n, ok := r.Int(field); !ok || (n != 0 && n != 1) {
			add(field, "%s must be 0 or 1", field)
		}
	}
	return errs
}
