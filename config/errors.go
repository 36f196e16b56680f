package config

import "fmt"

// ParseError reports input that could not be read as a document at all:
// malformed syntax or duplicated mapping keys.
type ParseError struct {
	// Path is the originating file, empty for in-memory documents.
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse: %v", e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying decoder error.
func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a document whose shape does not fit the
// configuration schema: missing required keys, values of the wrong
// type, or keys the schema does not know.
type SchemaError struct {
	// Section is the top-level section at fault, empty at document root.
	Section string
	// Field is the offending key, empty when the whole section is
	// malformed.
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s%v", at(e.Section, e.Field), e.Err)
}

// Unwrap returns the underlying cause.
func (e *SchemaError) Unwrap() error { return e.Err }

// Schemaf builds a SchemaError from a format string.
func Schemaf(section, field, format string, args ...interface{}) *SchemaError {
	return &SchemaError{Section: section, Field: field, Err: fmt.Errorf(format, args...)}
}

// ValidationError reports a well-formed document carrying values the
// schema cannot accept: numbers out of range, unknown enum spellings,
// or fields that contradict each other.
type ValidationError struct {
	// Section is the top-level section at fault, empty at document root.
	Section string
	// Field is the offending key, possibly dotted for nested fields.
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s%s", at(e.Section, e.Field), e.Msg)
}

// Validationf builds a ValidationError from a format string.
func Validationf(section, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Section: section, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Warning is a non-fatal diagnostic raised while interpreting a
// document. Warnings never fail a load; callers choose how to surface
// them.
type Warning struct {
	Section string
	Field   string
	Msg     string
}

func (w Warning) String() string {
	return at(w.Section, w.Field) + w.Msg
}

// Warningf builds a Warning from a format string.
func Warningf(section, field, format string, args ...interface{}) Warning {
	return Warning{Section: section, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func at(section, field string) string {
	switch {
	case section == "" && field == "":
		return ""
	case section == "":
		return field + ": "
	case field == "":
		return section + ": "
	default:
		return section + "." + field + ": "
	}
}
