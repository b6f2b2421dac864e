package model

// Report is a frictionless style validation report.
type Report struct {
	Valid    bool          `json:"valid"`
	Stats    ReportStats   `json:"stats"`
	Warnings []string      `json:"warnings"`
	Errors   []ReportError `json:"errors"`
	Tasks    []ReportTask  `json:"tasks"`
}

type ReportStats struct {
	Tasks    int     `json:"tasks,omitempty"`
	Errors   int     `json:"errors"`
	Warnings int     `json:"warnings"`
	Seconds  float64 `json:"seconds"`
	Rows     int     `json:"rows,omitempty"`
	Fields   int     `json:"fields,omitempty"`
	Bytes    int64   `json:"bytes,omitempty"`
	MD5      string  `json:"md5,omitempty"`
}

type ReportTask struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Valid    bool          `json:"valid"`
	Place    string        `json:"place"`
	Source   string        `json:"source,omitempty"`
	Labels   []string      `json:"labels"`
	Stats    ReportStats   `json:"stats"`
	Warnings []string      `json:"warnings"`
	Errors   []ReportError `json:"errors"`
}

type ReportError struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Message     string   `json:"message"`
	Tags        []string `json:"tags"`
	Note        string   `json:"note"`
	RowNumber   int      `json:"rowNumber,omitempty"`
	FieldName   string   `json:"fieldName,omitempty"`
	FieldNumber int      `json:"fieldNumber,omitempty"`
	Cells       []string `json:"cells,omitempty"`
	Cell        string   `json:"cell,omitempty"`
	Label       string   `json:"label,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// String is the one line description used in error payloads.
func (e ReportError) String() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Title != "":
		return e.Title
	default:
		return e.Type
	}
}

// MajorErrorTypes are error types meaning the data could not be read at all.
var MajorErrorTypes = map[string]struct{}{
	"resource-error":    {},
	"source-error":      {},
	"scheme-error":      {},
	"format-error":      {},
	"encoding-error":    {},
	"compression-error": {},
}

// IsMajor reports whether the error is a structural failure rather than a data quality one.
func (e ReportError) IsMajor() bool {
	_, ok := MajorErrorTypes[e.Type]
	return ok
}

// ContainsMajorError reports whether any task has a structural error.
func (r *Report) ContainsMajorError() bool {
	for _, task := range r.Tasks {
		for _, err := range task.Errors {
			if err.IsMajor() {
				return true
			}
		}
	}
	return false
}

// HasEncodingError reports whether a task failed on its first error because of encoding.
func (r *Report) HasEncodingError() bool {
	for _, task := range r.Tasks {
		if len(task.Errors) > 0 && task.Errors[0].Type == "encoding-error" {
			return true
		}
	}
	return false
}
