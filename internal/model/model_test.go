package model

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestValidationStatus(t *testing.T) {
	for _, s := range TerminalStatuses {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsLive(), s)
	}
	for _, s := range LiveStatuses {
		assert.True(t, s.IsLive(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	assert.False(t, ValidationStatus("pending").Valid())
}

func TestValidationDictize(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	v := &Validation{
		ID:         "v1",
		ResourceID: "r1",
		Status:     StatusFailure,
		Created:    created,
		Finished:   sql.NullTime{Time: created.Add(time.Minute), Valid: true},
		Report:     datatypes.JSON(`{"valid":false}`),
	}

	d := v.Dictize()
	require.NotNil(t, d.Created)
	require.NotNil(t, d.Finished)
	assert.Equal(t, "2024-05-01T08:00:00", *d.Created)
	assert.Equal(t, "2024-05-01T08:01:00", *d.Finished)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id":"v1","resource_id":"r1","status":"failure",
		"report":{"valid":false},"error":null,
		"created":"2024-05-01T08:00:00","finished":"2024-05-01T08:01:00"
	}`, string(raw))
}

func TestValidationDictizeLive(t *testing.T) {
	d := (&Validation{ID: "v1", ResourceID: "r1", Status: StatusCreated, Created: time.Now()}).Dictize()
	assert.Nil(t, d.Finished)
	assert.Equal(t, json.RawMessage("null"), d.Report)
}

func TestDecodePayloads(t *testing.T) {
	v := &Validation{Error: datatypes.JSON(`{"message":["Errors validating the data"]}`)}
	p, err := v.DecodeError()
	require.NoError(t, err)
	assert.Equal(t, []string{"Errors validating the data"}, p.Message)

	r, err := v.DecodeReport()
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestReportClassificationHelpers(t *testing.T) {
	tests := []struct {
		name     string
		report   Report
		major    bool
		encoding bool
	}{
		{name: "clean", report: Report{Valid: true, Tasks: []ReportTask{{}}}},
		{name: "row errors", report: Report{Tasks: []ReportTask{{Errors: []ReportError{{Type: "missing-cell"}, {Type: "type-error"}}}}}},
		{name: "source error", report: Report{Tasks: []ReportTask{{Errors: []ReportError{{Type: "source-error"}}}}}, major: true},
		{name: "encoding first", report: Report{Tasks: []ReportTask{{Errors: []ReportError{{Type: "encoding-error"}}}}}, major: true, encoding: true},
		{name: "encoding later", report: Report{Tasks: []ReportTask{{Errors: []ReportError{{Type: "blank-row"}, {Type: "encoding-error"}}}}}, major: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.major, tt.report.ContainsMajorError())
			assert.Equal(t, tt.encoding, tt.report.HasEncodingError())
		})
	}
}

func TestReportErrorString(t *testing.T) {
	assert.Equal(t, "msg", ReportError{Type: "t", Title: "T", Message: "msg"}.String())
	assert.Equal(t, "T", ReportError{Type: "t", Title: "T"}.String())
	assert.Equal(t, "t", ReportError{Type: "t"}.String())
}

func TestResourceHasSchema(t *testing.T) {
	tests := []struct {
		schema string
		want   bool
	}{
		{schema: ``, want: false},
		{schema: `null`, want: false},
		{schema: `""`, want: false},
		{schema: `{}`, want: false},
		{schema: `{"fields":[{"name":"a"}]}`, want: true},
		{schema: `"{\"fields\":[]}"`, want: true},
		{schema: `"https://example.com/schema.json"`, want: true},
	}
	for _, tt := range tests {
		r := Resource{Schema: json.RawMessage(tt.schema)}
		assert.Equal(t, tt.want, r.HasSchema(), tt.schema)
	}
}
