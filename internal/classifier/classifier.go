// Package classifier turns the unordered OCR token bags from the two sides
// of a national ID card into a structured identity record. Classification is
// a pure function: no I/O, deterministic for a given pair of bags.
package classifier

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Record is the structured identity extracted from a card. Dates keep the
// card's native DD.MM.YYYY textual form so the source representation is
// preserved exactly as printed.
type Record struct {
	Name               string `json:"name"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	IDNumber           string `json:"id_number"`
	DateOfBirth        string `json:"date_of_birth"`
	PlaceOfBirth       string `json:"place_of_birth"`
	ExpiryDate         string `json:"expiry_date"`
	FatherName         string `json:"father_name"`
	MotherName         string `json:"mother_name"`
	Address            string `json:"address"`
	CivilStatusNumber  string `json:"civil_status_number"`
	Gender             string `json:"gender"`
	VerificationStatus string `json:"verification_status"`
}

// Result is the classifier output. Success is always true regardless of
// missing fields; callers must inspect MissingFields rather than trust the
// boolean.
type Result struct {
	Success       bool     `json:"success"`
	Record        Record   `json:"data"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

const (
	fatherMarker  = "Fils de"
	motherMarker  = "et de"
	addressMarker = "Adresse"
	genderMarker  = "Sexe"
)

var (
	datePattern        = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	idNumberPattern    = regexp.MustCompile(`^[A-Z]{1,2}\d{6}$`)
	civilStatusPattern = regexp.MustCompile(`^\d{3}/\d{4}$`)
	namePattern        = regexp.MustCompile(`^[A-Z]{2,}$`)
	whitespacePattern  = regexp.MustCompile(`\s`)
)

// Header and boilerplate words printed on every card; a token containing any
// of these is never a name candidate.
var headerKeywords = []string{
	"ROYAUME",
	"MAROC",
	"CARTE",
	"NATIONALE",
	"IDENTITE",
	"D'IDENTITE",
	"ELECTRONIQUE",
}

// Classify maps the two token bags onto a Record and reports which required
// fields are still absent. Tokens are tested independently; for each rule
// the last matching token in bag order determines the field.
func Classify(frontTokens, backTokens []string) Result {
	rec := Record{VerificationStatus: "verified"}

	classifyBack(backTokens, &rec)
	classifyFront(frontTokens, &rec)

	rec.Name = rec.FirstName + " " + rec.LastName

	return Result{
		Success:       true,
		Record:        rec,
		MissingFields: MissingFieldLabels(rec),
	}
}

func classifyBack(tokens []string, rec *Record) {
	for _, raw := range tokens {
		text := strings.TrimSpace(raw)

		if idx := strings.LastIndex(text, fatherMarker); idx >= 0 {
			rec.FatherName = strings.TrimSpace(text[idx+len(fatherMarker):])
		}
		if idx := strings.LastIndex(text, motherMarker); idx >= 0 {
			rec.MotherName = strings.TrimSpace(text[idx+len(motherMarker):])
		}
		if idx := strings.LastIndex(text, addressMarker); idx >= 0 {
			rec.Address = strings.TrimSpace(text[idx+len(addressMarker):])
		}
		if civilStatusPattern.MatchString(text) {
			rec.CivilStatusNumber = text
		}
		if strings.Contains(text, genderMarker) {
			rec.Gender = strings.TrimSpace(strings.Replace(text, genderMarker, "", 1))
		}
	}
}

func classifyFront(tokens []string, rec *Record) {
	// Name pass: the first two valid candidates in bag order become the
	// first and last name.
	var candidates []string
	for _, raw := range tokens {
		text := strings.TrimSpace(raw)
		if isValidName(text) {
			candidates = append(candidates, text)
		}
	}
	if len(candidates) >= 2 {
		rec.FirstName = candidates[0]
		rec.LastName = candidates[1]
	}

	// Field pass: dates, card number, place of birth.
	var dates []string
	for _, raw := range tokens {
		text := strings.TrimSpace(raw)

		if datePattern.MatchString(text) {
			dates = append(dates, text)
		}
		if idNumberPattern.MatchString(text) {
			rec.IDNumber = text
		}
		if place, ok := placeOfBirth(text); ok {
			rec.PlaceOfBirth = place
		}
	}

	// The earliest date by year is the birth date, the latest the expiry.
	// With exactly one date neither assignment is made.
	if len(dates) >= 2 {
		sorted := append([]string(nil), dates...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return dateYear(sorted[i]) < dateYear(sorted[j])
		})
		rec.DateOfBirth = formatDate(sorted[0])
		rec.ExpiryDate = formatDate(sorted[len(sorted)-1])
	}
}

func isValidName(text string) bool {
	stripped := whitespacePattern.ReplaceAllString(text, "")
	if !namePattern.MatchString(stripped) {
		return false
	}
	return !isHeader(text)
}

func isHeader(text string) bool {
	for _, keyword := range headerKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// placeOfBirth strips the leading preposition ("a " or "à ", case
// insensitive) and upper-cases the remainder.
func placeOfBirth(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, prefix := range []string{"a ", "à "} {
		if strings.HasPrefix(lower, prefix) {
			return strings.ToUpper(text[len(prefix):]), true
		}
	}
	return "", false
}

func dateYear(date string) int {
	parts := strings.Split(date, ".")
	year, _ := strconv.Atoi(parts[len(parts)-1])
	return year
}

// formatDate zero-pads the day and month components of a DD.MM.YYYY string.
func formatDate(date string) string {
	parts := strings.Split(date, ".")
	if len(parts) != 3 {
		return date
	}
	return padComponent(parts[0]) + "." + padComponent(parts[1]) + "." + parts[2]
}

func padComponent(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

// MissingFieldLabels checks the ten required semantic fields and returns a
// human-readable label for each one that is absent. A first or last name of
// length 1 or less does not count as present. Expiry date and verification
// status are not required.
func MissingFieldLabels(rec Record) []string {
	var missing []string
	if len(rec.FirstName) <= 1 {
		missing = append(missing, "valid first name")
	}
	if len(rec.LastName) <= 1 {
		missing = append(missing, "valid last name")
	}
	if rec.DateOfBirth == "" {
		missing = append(missing, "date of birth")
	}
	if rec.PlaceOfBirth == "" {
		missing = append(missing, "place of birth")
	}
	if rec.IDNumber == "" {
		missing = append(missing, "ID number")
	}
	if rec.FatherName == "" {
		missing = append(missing, "father's name")
	}
	if rec.MotherName == "" {
		missing = append(missing, "mother's name")
	}
	if rec.Address == "" {
		missing = append(missing, "address")
	}
	if rec.CivilStatusNumber == "" {
		missing = append(missing, "civil status number")
	}
	if rec.Gender == "" {
		missing = append(missing, "gender")
	}
	return missing
}
