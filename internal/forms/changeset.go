// Package forms provides validated form state for the account-setup wizard.
package forms

import (
	"fmt"
	"regexp"
	"strings"
)

// Changeset tracks form changes against existing data and validates them.
// Submission is blocked while the changeset is invalid.
type Changeset struct {
	// Data is the original data (e.g., hydrated from the draft store).
	Data map[string]any

	// Changes are the modifications to be applied.
	Changes map[string]any

	// Errors contains validation errors keyed by field name.
	Errors map[string][]string

	// Valid indicates if the changeset has passed validation.
	Valid bool
}

// NewChangeset creates a new changeset from existing data.
func NewChangeset(data map[string]any) *Changeset {
	dataCopy := make(map[string]any, len(data))
	for k, v := range data {
		dataCopy[k] = v
	}

	return &Changeset{
		Data:    dataCopy,
		Changes: make(map[string]any),
		Errors:  make(map[string][]string),
		Valid:   true,
	}
}

// Cast filters and casts input params to changes. Only fields in the
// allowed list are included.
func Cast(data, params map[string]any, allowed []string) *Changeset {
	cs := NewChangeset(data)

	allowedSet := make(map[string]bool, len(allowed))
	for _, field := range allowed {
		allowedSet[field] = true
	}

	for key, value := range params {
		if allowedSet[key] && data[key] != value {
			cs.Changes[key] = value
		}
	}

	return cs
}

// PutChange adds or updates a change.
func (cs *Changeset) PutChange(key string, value any) *Changeset {
	cs.Changes[key] = value
	return cs
}

// GetField retrieves a field value (change if present, otherwise data).
func (cs *Changeset) GetField(key string) any {
	if v, ok := cs.Changes[key]; ok {
		return v
	}
	return cs.Data[key]
}

// GetString retrieves a string field.
func (cs *Changeset) GetString(key string) string {
	if v, ok := cs.GetField(key).(string); ok {
		return v
	}
	return ""
}

// GetBool retrieves a bool field.
func (cs *Changeset) GetBool(key string) bool {
	v, _ := cs.GetField(key).(bool)
	return v
}

// ValidateRequired validates that required fields are present.
func (cs *Changeset) ValidateRequired(fields ...string) *Changeset {
	for _, field := range fields {
		value := cs.GetField(field)
		if value == nil {
			cs.AddError(field, "is required")
			continue
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			cs.AddError(field, "is required")
		}
	}
	return cs
}

// ValidateFormat validates a field matches a regex pattern. Empty
// values are skipped; pair with ValidateRequired.
func (cs *Changeset) ValidateFormat(field string, pattern *regexp.Regexp, message string) *Changeset {
	value := cs.GetString(field)
	if value == "" {
		return cs
	}

	if !pattern.MatchString(value) {
		cs.AddError(field, message)
	}

	return cs
}

// ValidateLength validates an exact string length in runes.
func (cs *Changeset) ValidateLength(field string, length int) *Changeset {
	value := cs.GetString(field)
	if value == "" {
		return cs
	}

	if len([]rune(value)) != length {
		cs.AddError(field, fmt.Sprintf("should be %d character(s)", length))
	}

	return cs
}

// ValidateInclusion validates the value is one of the given options.
func (cs *Changeset) ValidateInclusion(field string, values []string) *Changeset {
	value := cs.GetString(field)
	if value == "" {
		return cs
	}

	for _, v := range values {
		if value == v {
			return cs
		}
	}
	cs.AddError(field, "is invalid")
	return cs
}

// AddError adds an error to a field and marks the changeset invalid.
func (cs *Changeset) AddError(field, message string) *Changeset {
	cs.Errors[field] = append(cs.Errors[field], message)
	cs.Valid = false
	return cs
}

// HasError returns true if a field has errors.
func (cs *Changeset) HasError(field string) bool {
	return len(cs.Errors[field]) > 0
}

// FirstError returns the first error for a field.
func (cs *Changeset) FirstError(field string) string {
	if errs := cs.Errors[field]; len(errs) > 0 {
		return errs[0]
	}
	return ""
}

// ErrorMessages returns all errors as a single string.
func (cs *Changeset) ErrorMessages() string {
	var msgs []string
	for field, errs := range cs.Errors {
		for _, err := range errs {
			msgs = append(msgs, fmt.Sprintf("%s %s", field, err))
		}
	}
	return strings.Join(msgs, ", ")
}

// HasChanges returns true if there are any changes.
func (cs *Changeset) HasChanges() bool {
	return len(cs.Changes) > 0
}

// Apply returns the merged data with changes, or an error if the
// changeset is invalid.
func (cs *Changeset) Apply() (map[string]any, error) {
	if !cs.Valid {
		return nil, fmt.Errorf("changeset is invalid: %s", cs.ErrorMessages())
	}

	result := make(map[string]any, len(cs.Data)+len(cs.Changes))
	for k, v := range cs.Data {
		result[k] = v
	}
	for k, v := range cs.Changes {
		result[k] = v
	}

	return result, nil
}
