package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
)

// Details is the descriptive part of a booking that customers fill in.
type Details struct {
	Title         string
	Description   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Notes         string
}

type textRule struct {
	field    string
	value    string
	required bool
	min, max int
}

// CheckDetails returns one failure per offending field, in field order.
// Empty phone, description and notes are accepted.
func CheckDetails(d Details) []Result {
	var failures []Result
	for _, r := range []textRule{
		{field: "title", value: d.Title, required: true, min: 3, max: 100},
		{field: "description", value: d.Description, max: 500},
		{field: "customer_name", value: d.CustomerName, required: true, min: 2, max: 100},
	} {
		if res := r.check(); !res.Valid {
			failures = append(failures, res)
		}
	}

	switch email := strings.TrimSpace(d.CustomerEmail); {
	case email == "":
		failures = append(failures, missing("customer_email"))
	case !emailPattern.MatchString(email):
		failures = append(failures, fieldFail(ReasonInvalidField, "customer_email", "customer_email is not a valid email address"))
	}
	if phone := strings.TrimSpace(d.CustomerPhone); phone != "" && !phonePattern.MatchString(phone) {
		failures = append(failures, fieldFail(ReasonInvalidField, "customer_phone", "customer_phone contains invalid characters"))
	}
	if r := (textRule{field: "notes", value: d.Notes, max: 1000}).check(); !r.Valid {
		failures = append(failures, r)
	}
	return failures
}

func (r textRule) check() Result {
	n := utf8.RuneCountInString(strings.TrimSpace(r.value))
	switch {
	case n == 0 && r.required:
		return missing(r.field)
	case n == 0:
		return OK()
	case n < r.min:
		return fieldFail(ReasonInvalidField, r.field, "%s must be at least %d characters", r.field, r.min)
	case n > r.max:
		return fieldFail(ReasonInvalidField, r.field, "%s cannot exceed %d characters", r.field, r.max)
	}
	return OK()
}

func missing(field string) Result {
	return fieldFail(ReasonMissingField, field, "%s is required", field)
}

func fieldFail(reason Reason, field, format string, args ...any) Result {
	r := Fail(reason, format, args...)
	r.Field = field
	return r
}
