// Package engine validates tabular data against an optional Table Schema and
// produces frictionless style reports.
package engine

import (
	"catalog-validation/internal/model"
	"context"
)

// Source is the data to validate. Exactly one of Path and URL is set.
type Source struct {
	Path string
	URL  string
	// Headers are sent when URL is fetched.
	Headers map[string]string
}

// Place is the location the report refers to.
func (s Source) Place() string {
	if s.Path != "" {
		return s.Path
	}
	return s.URL
}

// Engine is the tabular validation black box. Problems with the data or the
// source are reported inside the returned report; an error is only returned
// when no report could be produced at all.
type Engine interface {
	Validate(ctx context.Context, source Source, format string, schema map[string]interface{}, opts Options) (*model.Report, error)
}

type CSVDialect struct {
	Delimiter        string `mapstructure:"delimiter"`
	QuoteChar        string `mapstructure:"quoteChar"`
	SkipInitialSpace bool   `mapstructure:"skipInitialSpace"`
}

type ExcelDialect struct {
	Sheet string `mapstructure:"sheet"`
}

// Dialect describes how rows are laid out in the file.
type Dialect struct {
	Header      *bool        `mapstructure:"header"`
	HeaderRows  []int        `mapstructure:"headerRows"`
	CommentChar string       `mapstructure:"commentChar"`
	CommentRows []int        `mapstructure:"commentRows"`
	CSV         CSVDialect   `mapstructure:"csv"`
	Excel       ExcelDialect `mapstructure:"excel"`
}

// HasHeader is true unless the dialect disables it explicitly.
func (d Dialect) HasHeader() bool {
	return d.Header == nil || *d.Header
}

// Options tune a validation run.
type Options struct {
	Dialect     Dialect  `mapstructure:"dialect"`
	Encoding    string   `mapstructure:"encoding"`
	LimitErrors int      `mapstructure:"limit_errors"`
	LimitRows   int      `mapstructure:"limit_rows"`
	SkipErrors  []string `mapstructure:"skip_errors"`
	PickErrors  []string `mapstructure:"pick_errors"`
	// Proxy is used for remote sources.
	Proxy string `mapstructure:"-"`
}

const DefaultLimitErrors = 1000
