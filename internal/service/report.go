package service

import (
	"catalog-validation/internal/model"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultErrorMessage = "Errors validating the data"

var tableWarningPattern = regexp.MustCompile(`Table ".*"`)

// normalizeReport hides the location the engine read the data from behind
// the resource URL and strips table names from top level warnings. The
// location is replaced wherever it appears, including free text.
func normalizeReport(report *model.Report, sourcePlace, resourceURL string) {
	hide := func(text string) string { return hideSource(text, sourcePlace, resourceURL) }
	for i := range report.Tasks {
		task := &report.Tasks[i]
		if isSourcePlace(task.Place, sourcePlace) {
			task.Place = resourceURL
		}
		if isSourcePlace(task.Source, sourcePlace) {
			task.Source = resourceURL
		}
		for j := range task.Warnings {
			task.Warnings[j] = hide(task.Warnings[j])
		}
		hideInErrors(task.Errors, hide)
	}
	hideInErrors(report.Errors, hide)
	for i, warning := range report.Warnings {
		report.Warnings[i] = tableWarningPattern.ReplaceAllString(hide(warning), "Table")
	}
}

func hideInErrors(errs []model.ReportError, hide func(string) string) {
	for i := range errs {
		errs[i].Message = hide(errs[i].Message)
		errs[i].Note = hide(errs[i].Note)
		errs[i].Description = hide(errs[i].Description)
	}
}

func isSourcePlace(p, sourcePlace string) bool {
	return (sourcePlace != "" && p == sourcePlace) || isLocalPath(p)
}

// hideSource replaces every occurrence of sourcePlace in text.
func hideSource(text, sourcePlace, resourceURL string) string {
	if sourcePlace == "" || sourcePlace == resourceURL {
		return text
	}
	return strings.ReplaceAll(text, sourcePlace, resourceURL)
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") || filepath.IsAbs(p)
}

// classifyReport maps a report to the terminal status it produces and, for
// errors, the payload stored with it.
func classifyReport(report *model.Report) (model.ValidationStatus, *model.ErrorPayload) {
	if report == nil {
		return model.StatusError, &model.ErrorPayload{Message: []string{defaultErrorMessage}}
	}
	if !report.ContainsMajorError() {
		if report.Valid {
			return model.StatusSuccess, nil
		}
		return model.StatusFailure, nil
	}
	return model.StatusError, errorPayloadFromReport(report)
}

func errorPayloadFromReport(report *model.Report) *model.ErrorPayload {
	if len(report.Tasks) == 0 || report.Tasks[0].Errors == nil {
		return &model.ErrorPayload{Message: []string{defaultErrorMessage}}
	}
	messages := make([]string, 0, len(report.Tasks[0].Errors))
	for _, e := range report.Tasks[0].Errors {
		messages = append(messages, e.String())
	}
	return &model.ErrorPayload{Message: messages}
}

func errorPayload(messages ...string) *model.ErrorPayload {
	return &model.ErrorPayload{Message: messages}
}
