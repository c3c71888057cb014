// Package validation checks incident payloads and strips markup from their
// free-text fields. Everything here is pure: no I/O, the clock is passed in.
package validation

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"safereport/internal/incident/models"
	dErrors "safereport/pkg/domain-errors"
	textutil "safereport/pkg/platform/strings"
)

const (
	MinNarrativeLength       = 50
	MinSevereNarrativeLength = 100

	dateLayout     = models.DateLayout
	dateTimeLayout = "2006-01-02 15:04"
)

var (
	datePattern             = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern             = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	healthIdentifierPattern = regexp.MustCompile(`^\d{10}$`)
)

// Validate applies the creation rules in order and returns the first
// violation as a validation error naming the field.
func Validate(p models.Payload, now time.Time) error {
	if err := validateDate(p.Date); err != nil {
		return err
	}
	if err := validateTime(p.Time); err != nil {
		return err
	}
	if err := validateHealthIdentifier(p.HealthIdentifier); err != nil {
		return err
	}
	if err := validateLevel(p.Level); err != nil {
		return err
	}
	if err := validateTypes(p.IncidentTypes); err != nil {
		return err
	}
	if err := requireText("home_name", p.HomeName); err != nil {
		return err
	}
	if err := requireText("unit", p.Unit); err != nil {
		return err
	}
	if err := validateNarrative(p.Description, MinNarrativeLength); err != nil {
		return err
	}
	if p.Level.IsSevere() {
		if err := validateNarrative(p.Description, MinSevereNarrativeLength); err != nil {
			return err
		}
		if err := requireText("injury_description", p.InjuryDescription); err != nil {
			return err
		}
		if err := requireText("treatment_description", p.TreatmentDescription); err != nil {
			return err
		}
	}
	return validateNotFuture(p.Date, p.Time, now)
}

// ValidateUpdate checks only the fields present in u. The severe-level
// narrative rule is a creation-time rule and is not re-applied. current
// supplies the date or time half when only one of them changes.
func ValidateUpdate(u models.UpdateFields, current *models.Incident, now time.Time) error {
	if u.IsEmpty() {
		return dErrors.New(dErrors.CodeBadRequest, "update contains no fields")
	}
	date, clock := current.Date, current.Time
	if u.Date != nil {
		if err := validateDate(*u.Date); err != nil {
			return err
		}
		date = *u.Date
	}
	if u.Time != nil {
		if err := validateTime(*u.Time); err != nil {
			return err
		}
		clock = *u.Time
	}
	if u.HealthIdentifier != nil {
		if err := validateHealthIdentifier(*u.HealthIdentifier); err != nil {
			return err
		}
	}
	if u.Level != nil {
		if err := validateLevel(*u.Level); err != nil {
			return err
		}
	}
	if u.IncidentTypes != nil {
		if err := validateTypes(*u.IncidentTypes); err != nil {
			return err
		}
	}
	if u.HomeName != nil {
		if err := requireText("home_name", *u.HomeName); err != nil {
			return err
		}
	}
	if u.Unit != nil {
		if err := requireText("unit", *u.Unit); err != nil {
			return err
		}
	}
	if u.Description != nil {
		if err := validateNarrative(*u.Description, MinNarrativeLength); err != nil {
			return err
		}
	}
	if u.Date != nil || u.Time != nil {
		return validateNotFuture(date, clock, now)
	}
	return nil
}

func validateDate(s string) error {
	if !datePattern.MatchString(s) {
		return dErrors.Validation("date", "date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return dErrors.Validation("date", "date is not a calendar date")
	}
	return nil
}

func validateTime(s string) error {
	if !timePattern.MatchString(s) {
		return dErrors.Validation("time", "time must be HH:mm (24h)")
	}
	return nil
}

func validateHealthIdentifier(s string) error {
	if s == "" {
		return nil
	}
	if !healthIdentifierPattern.MatchString(s) {
		return dErrors.Validation("health_identifier", "health identifier must be exactly 10 digits")
	}
	return nil
}

func validateLevel(l models.Level) error {
	if !l.IsValid() {
		return dErrors.Validation("incident_level", "incident level must be one of death, permanent_harm, minor_injury, no_harm, near_miss")
	}
	return nil
}

func validateTypes(types []string) error {
	for _, t := range types {
		if strings.TrimSpace(t) != "" {
			return nil
		}
	}
	return dErrors.Validation("incident_types", "at least one incident type is required")
}

func requireText(field, s string) error {
	if strings.TrimSpace(s) == "" {
		return dErrors.Validation(field, field+" is required")
	}
	return nil
}

func validateNarrative(s string, minLen int) error {
	if utf8.RuneCountInString(strings.TrimSpace(s)) < minLen {
		return dErrors.Validation("description", "description must be at least "+strconv.Itoa(minLen)+" characters").
			WithDetail("min_length", minLen)
	}
	return nil
}

func validateNotFuture(date, clock string, now time.Time) error {
	at, err := time.ParseInLocation(dateTimeLayout, date+" "+clock, now.Location())
	if err != nil {
		return dErrors.Validation("date", "invalid date and time")
	}
	if at.After(now) {
		return dErrors.Validation("date", "incident date and time cannot be in the future")
	}
	return nil
}

// strictPolicy removes every element and attribute. Policies are safe for
// concurrent use once built.
var strictPolicy = bluemonday.StrictPolicy()

const maxSanitizePasses = 4

// SanitizeText strips markup, restores entities to visible characters, and
// trims. It repeats until stable so that escaped markup cannot reappear as
// live tags after unescaping; input that never settles keeps its escaped form.
func SanitizeText(s string) string {
	out := s
	for range maxSanitizePasses {
		next := html.UnescapeString(strictPolicy.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	return strings.TrimSpace(strictPolicy.Sanitize(out))
}

// sanitizeSlice cleans each entry and drops the ones left blank.
func sanitizeSlice(in []string) []string {
	return textutil.Compact(in, SanitizeText)
}

// Sanitize returns a copy of p with every designated text field cleaned.
func Sanitize(p models.Payload) models.Payload {
	p.Description = SanitizeText(p.Description)
	p.InjuryDescription = SanitizeText(p.InjuryDescription)
	p.TreatmentDescription = SanitizeText(p.TreatmentDescription)
	p.ActionsTaken = SanitizeText(p.ActionsTaken)
	p.HomeName = SanitizeText(p.HomeName)
	p.Unit = SanitizeText(p.Unit)
	p.IncidentTypes = sanitizeSlice(p.IncidentTypes)
	p.Witnesses = sanitizeSlice(p.Witnesses)
	p.ContributingFactors = sanitizeSlice(p.ContributingFactors)
	return p
}

// SanitizeUpdate cleans the present text fields of u.
func SanitizeUpdate(u models.UpdateFields) models.UpdateFields {
	str := func(p *string) *string {
		if p == nil {
			return nil
		}
		s := SanitizeText(*p)
		return &s
	}
	slice := func(p *[]string) *[]string {
		if p == nil {
			return nil
		}
		s := sanitizeSlice(*p)
		return &s
	}
	u.Description = str(u.Description)
	u.InjuryDescription = str(u.InjuryDescription)
	u.TreatmentDescription = str(u.TreatmentDescription)
	u.ActionsTaken = str(u.ActionsTaken)
	u.HomeName = str(u.HomeName)
	u.Unit = str(u.Unit)
	u.IncidentTypes = slice(u.IncidentTypes)
	u.Witnesses = slice(u.Witnesses)
	u.ContributingFactors = slice(u.ContributingFactors)
	return u
}
