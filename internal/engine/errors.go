package engine

import (
	"catalog-validation/internal/model"
	"fmt"
	"strings"
)

const (
	ErrorTypeSource   = "source-error"
	ErrorTypeScheme   = "scheme-error"
	ErrorTypeFormat   = "format-error"
	ErrorTypeEncoding = "encoding-error"
	ErrorTypeSchema   = "schema-error"

	ErrorTypeBlankLabel     = "blank-label"
	ErrorTypeDuplicateLabel = "duplicate-label"
	ErrorTypeExtraLabel     = "extra-label"
	ErrorTypeMissingLabel   = "missing-label"
	ErrorTypeIncorrectLabel = "incorrect-label"

	ErrorTypeBlankRow    = "blank-row"
	ErrorTypeExtraCell   = "extra-cell"
	ErrorTypeMissingCell = "missing-cell"
	ErrorTypeType        = "type-error"
	ErrorTypeConstraint  = "constraint-error"
	ErrorTypeUnique      = "unique-error"
	ErrorTypePrimaryKey  = "primary-key"
)

var (
	labelTags = []string{"#table", "#header", "#label"}
	rowTags   = []string{"#table", "#row"}
	cellTags  = []string{"#table", "#row", "#cell"}
)

type errorTemplate struct {
	title       string
	description string
}

var templates = map[string]errorTemplate{
	ErrorTypeSource:         {"Source Error", "Data reading error because of not supported or inconsistent contents."},
	ErrorTypeScheme:         {"Scheme Error", "Data reading error because of incorrect scheme."},
	ErrorTypeFormat:         {"Format Error", "Data reading error because of incorrect format."},
	ErrorTypeEncoding:       {"Encoding Error", "Data reading error because of an encoding problem."},
	ErrorTypeSchema:         {"Schema Error", "Provided schema is not valid."},
	ErrorTypeBlankLabel:     {"Blank Label", "A label in the header row is missing a value. Label should be provided and not be blank."},
	ErrorTypeDuplicateLabel: {"Duplicate Label", "Two columns in the header row have the same value. Column names should be unique."},
	ErrorTypeExtraLabel:     {"Extra Label", "The header of the data source contains label that does not exist in the provided schema."},
	ErrorTypeMissingLabel:   {"Missing Label", "Based on the schema there should be a label that is missing in the data's header."},
	ErrorTypeIncorrectLabel: {"Incorrect Label", "One of the data source header does not match the field name defined in the schema."},
	ErrorTypeBlankRow:       {"Blank Row", "This row is empty. A row should contain at least one value."},
	ErrorTypeExtraCell:      {"Extra Cell", "This row has more values compared to the header row (the first row in the data source)."},
	ErrorTypeMissingCell:    {"Missing Cell", "This row has less values compared to the header row (the first row in the data source)."},
	ErrorTypeType:           {"Type Error", "The value does not match the schema type and format for this field."},
	ErrorTypeConstraint:     {"Constraint Error", "A field value does not conform to a constraint."},
	ErrorTypeUnique:         {"Unique Error", "This field is a unique field but it contains a value that has been used in another row."},
	ErrorTypePrimaryKey:     {"Primary Key Error", "Values in the primary key fields should be unique for every row"},
}

func newError(errType, message, note string, tags []string) model.ReportError {
	tpl := templates[errType]
	if tags == nil {
		tags = []string{}
	}
	return model.ReportError{
		Type:        errType,
		Title:       tpl.title,
		Description: tpl.description,
		Message:     message,
		Tags:        tags,
		Note:        note,
	}
}

func sourceError(note string) model.ReportError {
	return newError(ErrorTypeSource, "The data source has not supported or has inconsistent contents: "+note, note, nil)
}

func schemeError(note string) model.ReportError {
	return newError(ErrorTypeScheme, "The data source could not be successfully loaded: "+note, note, nil)
}

func formatError(note string) model.ReportError {
	return newError(ErrorTypeFormat, "The data source could not be successfully parsed: "+note, note, nil)
}

func encodingError(note string) model.ReportError {
	return newError(ErrorTypeEncoding, "The data source could not be successfully decoded: "+note, note, nil)
}

func schemaError(note string) model.ReportError {
	return newError(ErrorTypeSchema, "Schema is not valid: "+note, note, nil)
}

func labelError(errType string, label string, labels []string, fieldName string, fieldNumber int, note string) model.ReportError {
	var message string
	switch errType {
	case ErrorTypeBlankLabel:
		message = fmt.Sprintf("Label in the header in field at position %q is blank", fmt.Sprint(fieldNumber))
	case ErrorTypeDuplicateLabel:
		message = fmt.Sprintf("Label %q in the header at position %q is duplicated to a label: %s", label, fmt.Sprint(fieldNumber), note)
	case ErrorTypeExtraLabel:
		message = fmt.Sprintf("Label %q in the header at position %q is extra", label, fmt.Sprint(fieldNumber))
	case ErrorTypeMissingLabel:
		message = fmt.Sprintf("Label %q in field %s at position %q is missing", label, fieldName, fmt.Sprint(fieldNumber))
	case ErrorTypeIncorrectLabel:
		message = fmt.Sprintf("Label %q in field %s at position %q does not match the field name in the schema", label, fieldName, fmt.Sprint(fieldNumber))
	}
	e := newError(errType, message, note, labelTags)
	e.Label = label
	e.Labels = labels
	e.RowNumber = 1
	e.FieldName = fieldName
	e.FieldNumber = fieldNumber
	return e
}

func rowError(errType string, cells []string, rowNumber int, note string) model.ReportError {
	var message string
	switch errType {
	case ErrorTypeBlankRow:
		message = fmt.Sprintf("Row at position %q is completely blank", fmt.Sprint(rowNumber))
	case ErrorTypePrimaryKey:
		message = fmt.Sprintf("Row at position %q violates the primary key: %s", fmt.Sprint(rowNumber), note)
	}
	e := newError(errType, message, note, rowTags)
	e.Cells = cells
	e.RowNumber = rowNumber
	return e
}

func cellError(errType string, cells []string, rowNumber int, cell string, fieldName string, fieldNumber int, note string) model.ReportError {
	var message string
	switch errType {
	case ErrorTypeExtraCell:
		message = fmt.Sprintf("Row at position %q has an extra value in field at position %q", fmt.Sprint(rowNumber), fmt.Sprint(fieldNumber))
	case ErrorTypeMissingCell:
		message = fmt.Sprintf("Row at position %q has a missing cell in field %q at position %q", fmt.Sprint(rowNumber), fieldName, fmt.Sprint(fieldNumber))
	case ErrorTypeType:
		message = fmt.Sprintf("Type error in the cell %q in row %q and field %q at position %q: %s", cell, fmt.Sprint(rowNumber), fieldName, fmt.Sprint(fieldNumber), note)
	case ErrorTypeConstraint:
		message = fmt.Sprintf("The cell %q in row at position %q and field %q at position %q does not conform to a constraint: %s", cell, fmt.Sprint(rowNumber), fieldName, fmt.Sprint(fieldNumber), note)
	case ErrorTypeUnique:
		message = fmt.Sprintf("Row at position %q has unique constraint violation in field %q at position %q: %s", fmt.Sprint(rowNumber), fieldName, fmt.Sprint(fieldNumber), note)
	}
	e := newError(errType, message, note, cellTags)
	e.Cells = cells
	e.RowNumber = rowNumber
	e.Cell = cell
	e.FieldName = fieldName
	e.FieldNumber = fieldNumber
	return e
}

// errorFilter keeps the error types selected by pick_errors and drops the
// ones named by skip_errors. Entries starting with # match tags.
type errorFilter struct {
	pick []string
	skip []string
}

func newErrorFilter(opts Options) errorFilter {
	return errorFilter{pick: opts.PickErrors, skip: opts.SkipErrors}
}

func matchesAny(e model.ReportError, names []string) bool {
	for _, name := range names {
		if strings.HasPrefix(name, "#") {
			for _, tag := range e.Tags {
				if tag == name {
					return true
				}
			}
			continue
		}
		if e.Type == name {
			return true
		}
	}
	return false
}

func (f errorFilter) keep(e model.ReportError) bool {
	if len(f.pick) > 0 && !matchesAny(e, f.pick) {
		return false
	}
	return !matchesAny(e, f.skip)
}
