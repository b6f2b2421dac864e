package engine

import (
	"catalog-validation/internal/model"
	"catalog-validation/pkg/httpclient"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/ratelimit"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// hostIdleTimeout is how long a download host's limiter is kept unused.
const hostIdleTimeout = 10 * time.Minute

// Builtin validates CSV, TSV and Excel workbooks with the baseline
// structural checks and the checks a Table Schema implies.
type Builtin struct {
	timeout   time.Duration
	hosts     *ratelimit.HostLimiter
	log       *logger.Logger
	newClient func(opts httpclient.Options) httpclient.HTTPClient
}

// NewBuiltin creates the builtin engine. Remote sources are fetched at most
// perHost times per second for each host.
func NewBuiltin(timeout time.Duration, perHost rate.Limit, burst int, log *logger.Logger) *Builtin {
	return &Builtin{
		timeout:   timeout,
		hosts:     ratelimit.NewHostLimiter(perHost, burst, hostIdleTimeout),
		log:       log,
		newClient: httpclient.New,
	}
}

// inspection collects the errors of one task.
type inspection struct {
	task    *model.ReportTask
	filter  errorFilter
	limit   int
	reached bool
}

// add records e and reports whether the inspection may go on.
func (in *inspection) add(e model.ReportError) bool {
	if in.reached {
		return false
	}
	if !in.filter.keep(e) {
		return true
	}
	in.task.Errors = append(in.task.Errors, e)
	if in.limit > 0 && len(in.task.Errors) >= in.limit {
		in.reached = true
		in.task.Warnings = append(in.task.Warnings, fmt.Sprintf("reached error limit: %d", in.limit))
		return false
	}
	return true
}

func taskName(place string) string {
	p := place
	if u, err := url.Parse(place); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.ToLower(base)
}

func (b *Builtin) Validate(ctx context.Context, source Source, format string, schema map[string]interface{}, opts Options) (*model.Report, error) {
	start := time.Now()
	format = strings.ToLower(strings.TrimSpace(format))

	task := &model.ReportTask{
		Name:     taskName(source.Place()),
		Type:     "table",
		Place:    source.Place(),
		Labels:   []string{},
		Warnings: []string{},
		Errors:   []model.ReportError{},
	}
	limit := opts.LimitErrors
	if limit == 0 {
		limit = DefaultLimitErrors
	}
	in := &inspection{task: task, filter: newErrorFilter(opts), limit: limit}

	if err := b.inspect(ctx, in, source, format, schema, opts); err != nil {
		return nil, err
	}

	seconds := time.Since(start).Seconds()
	task.Valid = len(task.Errors) == 0
	task.Stats.Errors = len(task.Errors)
	task.Stats.Warnings = len(task.Warnings)
	task.Stats.Seconds = seconds

	report := &model.Report{
		Valid:    task.Valid,
		Warnings: []string{},
		Errors:   []model.ReportError{},
		Tasks:    []model.ReportTask{*task},
		Stats: model.ReportStats{
			Tasks:    1,
			Errors:   task.Stats.Errors,
			Warnings: task.Stats.Warnings,
			Seconds:  seconds,
		},
	}
	if in.reached {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("Table %q inspection has reached %d error(s) limit", task.Place, limit))
	}
	return report, nil
}

func (b *Builtin) inspect(ctx context.Context, in *inspection, source Source, format string, rawSchema map[string]interface{}, opts Options) error {
	raw, err := b.load(ctx, source, opts)
	if err != nil {
		var le *loadError
		if errors.As(err, &le) {
			e := sourceError(le.note)
			if le.reportType == ErrorTypeScheme {
				e = schemeError(le.note)
			}
			in.add(e)
			return nil
		}
		return err
	}

	b.log.DebugContext(ctx, "Source loaded",
		logger.StringField("place", source.Place()),
		logger.IntField("bytes", len(raw)),
	)

	sum := md5.Sum(raw)
	in.task.Stats.Bytes = int64(len(raw))
	in.task.Stats.MD5 = hex.EncodeToString(sum[:])

	data := raw
	if isTextFormat(format) {
		data, err = decodeText(raw, opts.Encoding)
		if err != nil {
			in.add(encodingError(err.Error()))
			return nil
		}
	}

	tbl, err := readTable(data, format, opts.Dialect)
	if err != nil {
		in.add(formatError(err.Error()))
		return nil
	}
	in.task.Warnings = append(in.task.Warnings, tbl.warnings...)

	var schema *Schema
	if len(rawSchema) > 0 {
		schema, err = ParseSchema(rawSchema)
		if err != nil {
			in.add(schemaError(err.Error()))
			return nil
		}
	}

	labels, rows := tbl.split(opts.Dialect)
	if labels != nil {
		in.task.Labels = labels
	}

	fieldNames := fieldNamesFor(labels, schema, rows)
	in.task.Stats.Fields = len(fieldNames)

	if !checkLabels(in, labels, schema) {
		return nil
	}
	checkRows(ctx, in, rows, fieldNames, schema, tbl.padded, opts.LimitRows)
	return nil
}

// fieldNamesFor names the columns: schema fields win, then labels, then
// positional names.
func fieldNamesFor(labels []string, schema *Schema, rows []row) []string {
	if schema != nil {
		return schema.FieldNames()
	}
	if labels != nil {
		return labels
	}
	width := 0
	for _, r := range rows {
		if len(r.Cells) > width {
			width = len(r.Cells)
		}
	}
	names := make([]string, width)
	for i := range names {
		names[i] = fmt.Sprintf("field%d", i+1)
	}
	return names
}

func checkLabels(in *inspection, labels []string, schema *Schema) bool {
	if labels == nil {
		return true
	}

	seen := make(map[string]int, len(labels))
	for i, label := range labels {
		fieldName := label
		if schema != nil && i < len(schema.Fields) {
			fieldName = schema.Fields[i].Name
		}
		if strings.TrimSpace(label) == "" {
			if !in.add(labelError(ErrorTypeBlankLabel, label, labels, fieldName, i+1, "")) {
				return false
			}
			continue
		}
		if first, ok := seen[label]; ok {
			note := fmt.Sprintf("at position %q", fmt.Sprint(first))
			if !in.add(labelError(ErrorTypeDuplicateLabel, label, labels, fieldName, i+1, note)) {
				return false
			}
			continue
		}
		seen[label] = i + 1
	}

	if schema == nil {
		return true
	}

	width := len(labels)
	if len(schema.Fields) > width {
		width = len(schema.Fields)
	}
	for i := 0; i < width; i++ {
		var e *model.ReportError
		switch {
		case i >= len(schema.Fields):
			err := labelError(ErrorTypeExtraLabel, labels[i], labels, labels[i], i+1, "")
			e = &err
		case i >= len(labels):
			name := schema.Fields[i].Name
			err := labelError(ErrorTypeMissingLabel, "", labels, name, i+1, "")
			e = &err
		case strings.TrimSpace(labels[i]) != "" && labels[i] != schema.Fields[i].Name:
			err := labelError(ErrorTypeIncorrectLabel, labels[i], labels, schema.Fields[i].Name, i+1, "")
			e = &err
		}
		if e != nil && !in.add(*e) {
			return false
		}
	}
	return true
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func checkRows(ctx context.Context, in *inspection, rows []row, fieldNames []string, schema *Schema, padded bool, limitRows int) {
	var (
		uniques    = map[int]map[string]int{}
		primaryKey = map[string]int{}
		width      = len(fieldNames)
	)

	for count, r := range rows {
		if ctx.Err() != nil {
			return
		}
		if limitRows > 0 && count >= limitRows {
			in.task.Warnings = append(in.task.Warnings, fmt.Sprintf("reached row limit: %d", limitRows))
			return
		}
		in.task.Stats.Rows++

		cells := r.Cells
		if padded && len(cells) < width {
			cells = append(append([]string{}, cells...), make([]string, width-len(cells))...)
		}

		if isBlankRow(cells) {
			if !in.add(rowError(ErrorTypeBlankRow, cells, r.Number, "")) {
				return
			}
			continue
		}

		for i := width; i < len(cells); i++ {
			if !in.add(cellError(ErrorTypeExtraCell, cells, r.Number, cells[i], "", i+1, "")) {
				return
			}
		}
		for i := len(cells); i < width; i++ {
			if !in.add(cellError(ErrorTypeMissingCell, cells, r.Number, "", fieldNames[i], i+1, "")) {
				return
			}
		}

		if schema == nil {
			continue
		}

		values := make([]interface{}, width)
		for i := 0; i < width && i < len(cells); i++ {
			field := &schema.Fields[i]
			cell := cells[i]
			if schema.isMissing(cell) {
				if field.Constraints.Required || inPrimaryKey(schema, i) {
					note := fmt.Sprintf("constraint %q is %q", "required", "True")
					if !in.add(cellError(ErrorTypeConstraint, cells, r.Number, cell, field.Name, i+1, note)) {
						return
					}
				}
				continue
			}

			value, err := field.Cast(cell)
			if err != nil {
				if !in.add(cellError(ErrorTypeType, cells, r.Number, cell, field.Name, i+1, field.typeNote())) {
					return
				}
				continue
			}
			values[i] = value

			if note := field.checkConstraints(cell, value); note != "" {
				if !in.add(cellError(ErrorTypeConstraint, cells, r.Number, cell, field.Name, i+1, note)) {
					return
				}
				continue
			}

			if field.Constraints.Unique {
				seen, ok := uniques[i]
				if !ok {
					seen = map[string]int{}
					uniques[i] = seen
				}
				key := valueKey(value)
				if first, dup := seen[key]; dup {
					note := fmt.Sprintf("the same as in the row at position %d", first)
					if !in.add(cellError(ErrorTypeUnique, cells, r.Number, cell, field.Name, i+1, note)) {
						return
					}
				} else {
					seen[key] = r.Number
				}
			}
		}

		if len(schema.primaryKey) > 0 {
			parts := make([]string, 0, len(schema.primaryKey))
			complete := true
			for _, idx := range schema.primaryKey {
				if values[idx] == nil {
					complete = false
					break
				}
				parts = append(parts, valueKey(values[idx]))
			}
			if !complete {
				continue
			}
			key := strings.Join(parts, "\x00")
			if first, dup := primaryKey[key]; dup {
				note := fmt.Sprintf("the same as in the row at position %d", first)
				if !in.add(rowError(ErrorTypePrimaryKey, cells, r.Number, note)) {
					return
				}
			} else {
				primaryKey[key] = r.Number
			}
		}
	}
}

func inPrimaryKey(schema *Schema, idx int) bool {
	for _, i := range schema.primaryKey {
		if i == idx {
			return true
		}
	}
	return false
}
