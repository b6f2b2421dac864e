package engine

import (
	"catalog-validation/internal/model"
	"catalog-validation/pkg/logger"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/time/rate"
)

func newTestEngine() *Builtin {
	return NewBuiltin(5*time.Second, rate.Inf, 1, logger.NewNop())
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, content, 0o600))
	return p
}

func errorTypes(r *model.Report) []string {
	var out []string
	for _, task := range r.Tasks {
		for _, e := range task.Errors {
			out = append(out, e.Type)
		}
	}
	return out
}

func TestValidateValidCSV(t *testing.T) {
	p := writeFile(t, "data.csv", []byte("a,b,c\n1,2,3\n4,5,6\n"))

	report, err := newTestEngine().Validate(context.Background(), Source{Path: p}, "csv", nil, Options{})
	require.NoError(t, err)

	assert.True(t, report.Valid)
	require.Len(t, report.Tasks, 1)
	task := report.Tasks[0]
	assert.Equal(t, "data", task.Name)
	assert.Equal(t, p, task.Place)
	assert.Equal(t, []string{"a", "b", "c"}, task.Labels)
	assert.Equal(t, 2, task.Stats.Rows)
	assert.Equal(t, 3, task.Stats.Fields)
	assert.NotEmpty(t, task.Stats.MD5)
	assert.Equal(t, 1, report.Stats.Tasks)
}

func TestValidateStructuralErrors(t *testing.T) {
	p := writeFile(t, "data.csv", []byte("a,b,a,\n1,2\n,,,\n1,2,3,4,5\n"))

	report, err := newTestEngine().Validate(context.Background(), Source{Path: p}, "csv", nil, Options{})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, []string{
		ErrorTypeDuplicateLabel,
		ErrorTypeBlankLabel,
		ErrorTypeMissingCell, ErrorTypeMissingCell,
		ErrorTypeBlankRow,
		ErrorTypeExtraCell,
	}, errorTypes(report))
	assert.False(t, report.ContainsMajorError())

	missing := report.Tasks[0].Errors[2]
	assert.Equal(t, 2, missing.RowNumber)
	assert.Equal(t, 3, missing.FieldNumber)
	assert.Equal(t, `Row at position "2" has a missing cell in field "a" at position "3"`, missing.Message)
}

func TestValidateSchemaChecks(t *testing.T) {
	schema := map[string]interface{}{
		"fields": []interface{}{
			map[string]interface{}{"name": "id", "type": "integer", "constraints": map[string]interface{}{"unique": true}},
			map[string]interface{}{"name": "name", "type": "string", "constraints": map[string]interface{}{"required": true}},
			map[string]interface{}{"name": "score", "type": "number", "constraints": map[string]interface{}{"minimum": 0.0}},
		},
	}
	p := writeFile(t, "people.csv", []byte("id,name,score\n1,ann,3.5\nx,bob,1\n1,,2\n3,cid,-1\n"))

	report, err := newTestEngine().Validate(context.Background(), Source{Path: p}, "csv", schema, Options{})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, []string{
		ErrorTypeType,
		ErrorTypeUnique,
		ErrorTypeConstraint,
		ErrorTypeConstraint,
	}, errorTypes(report))

	typeErr := report.Tasks[0].Errors[0]
	assert.Equal(t, "x", typeErr.Cell)
	assert.Contains(t, typeErr.Message, `type is "integer/default"`)

	required := report.Tasks[0].Errors[2]
	assert.Equal(t, "name", required.FieldName)
	assert.Contains(t, required.Note, `constraint "required" is "True"`)
}

func TestValidateLabelsAgainstSchema(t *testing.T) {
	schema := map[string]interface{}{
		"fields": []interface{}{
			map[string]interface{}{"name": "id"},
			map[string]interface{}{"name": "name"},
			map[string]interface{}{"name": "extra"},
		},
	}
	p := writeFile(t, "data.csv", []byte("id,nm\n1,a\n"))

	report, err := newTestEngine().Validate(context.Background(), Source{Path: p}, "csv", schema, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{ErrorTypeIncorrectLabel, ErrorTypeMissingLabel, ErrorTypeMissingCell}, errorTypes(report))
}

func TestValidateInvalidSchema(t *testing.T) {
	p := writeFile(t, "data.csv", []byte("a\n1\n"))
	schema := map[string]interface{}{"fields": []interface{}{map[string]interface{}{"name": "a", "type": "wat"}}}

	report, err := newTestEngine().Validate(context.Background(), Source{Path: p}, "csv", schema, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{ErrorTypeSchema}, errorTypes(report))
	assert.False(t, report.ContainsMajorError())
}

func TestValidateMissingFileIsSourceError(t *testing.T) {
	report, err := newTestEngine().Validate(context.Background(), Source{Path: "/does/not/exist.csv"}, "csv", nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{ErrorTypeSource}, errorTypes(report))
	assert.True(t, report.ContainsMajorError())
}

func TestValidateEncoding(t *testing.T) {
	latin1 := []byte("name\ncaf\xe9\n")
	p := writeFile(t, "latin.csv", latin1)
	e := newTestEngine()

	report, err := e.Validate(context.Background(), Source{Path: p}, "csv", nil, Options{})
	require.NoError(t, err)
	assert.True(t, report.HasEncodingError())

	report, err = e.Validate(context.Background(), Source{Path: p}, "csv", nil, Options{Encoding: EncodingLatin1})
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestValidateUnsupportedFormat(t *testing.T) {
	p := writeFile(t, "data.json", []byte(`{"a": 1}`))

	report, err := newTestEngine().Validate(context.Background(), Source{Path: p}, "json", nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{ErrorTypeFormat}, errorTypes(report))
}

func TestValidateErrorLimitAndFilters(t *testing.T) {
	p := writeFile(t, "data.csv", []byte("a,b\n1\n2\n3\n,\n"))
	e := newTestEngine()

	report, err := e.Validate(context.Background(), Source{Path: p}, "csv", nil, Options{LimitErrors: 2})
	require.NoError(t, err)
	assert.Len(t, report.Tasks[0].Errors, 2)
	assert.Contains(t, report.Tasks[0].Warnings, "reached error limit: 2")
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "inspection has reached 2 error(s) limit")

	report, err = e.Validate(context.Background(), Source{Path: p}, "csv", nil, Options{SkipErrors: []string{"#cell"}})
	require.NoError(t, err)
	assert.Equal(t, []string{ErrorTypeBlankRow}, errorTypes(report))

	report, err = e.Validate(context.Background(), Source{Path: p}, "csv", nil, Options{PickErrors: []string{ErrorTypeBlankRow}})
	require.NoError(t, err)
	assert.Equal(t, []string{ErrorTypeBlankRow}, errorTypes(report))
}

func TestValidateDialect(t *testing.T) {
	p := writeFile(t, "data.csv", []byte("# generated\nid;name\n1;a\n"))

	report, err := newTestEngine().Validate(context.Background(), Source{Path: p}, "csv", nil, Options{
		Dialect: Dialect{CommentChar: "#", HeaderRows: []int{2}},
	})
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.Equal(t, []string{"id", "name"}, report.Tasks[0].Labels)
	assert.Equal(t, 1, report.Tasks[0].Stats.Rows)
}

func TestValidateRemoteSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.csv":
			assert.Equal(t, "secret", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte("a,b\n1,2\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	e := newTestEngine()

	report, err := e.Validate(context.Background(), Source{
		URL:     srv.URL + "/data.csv",
		Headers: map[string]string{"Authorization": "secret"},
	}, "csv", nil, Options{})
	require.NoError(t, err)
	assert.True(t, report.Valid)

	report, err = e.Validate(context.Background(), Source{URL: srv.URL + "/missing.csv"}, "csv", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{ErrorTypeSource}, errorTypes(report))

	report, err = e.Validate(context.Background(), Source{URL: "ftp://example.com/data.csv"}, "csv", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{ErrorTypeScheme}, errorTypes(report))
}

func TestValidateExcel(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"id", "note"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{1, "x"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{2}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	p := writeFile(t, "book.xlsx", buf.Bytes())

	report, err := newTestEngine().Validate(context.Background(), Source{Path: p}, "xlsx", nil, Options{})
	require.NoError(t, err)

	assert.True(t, report.Valid, "trailing empty cells in a sheet are not missing cells")
	assert.Equal(t, 2, report.Tasks[0].Stats.Rows)

	bad := writeFile(t, "book.xls", []byte("not a workbook"))
	report, err = newTestEngine().Validate(context.Background(), Source{Path: bad}, "xls", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{ErrorTypeFormat}, errorTypes(report))
}
