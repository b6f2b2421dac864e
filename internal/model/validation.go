package model

import (
	"catalog-validation/pkg/utils"
	"database/sql"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type ValidationStatus string

const (
	StatusCreated ValidationStatus = "created"
	StatusRunning ValidationStatus = "running"
	StatusSuccess ValidationStatus = "success"
	StatusFailure ValidationStatus = "failure"
	StatusError   ValidationStatus = "error"
)

// LiveStatuses are the statuses of a job that has not finished yet.
var LiveStatuses = []ValidationStatus{StatusCreated, StatusRunning}

// TerminalStatuses are the statuses a job ends in.
var TerminalStatuses = []ValidationStatus{StatusSuccess, StatusFailure, StatusError}

func (s ValidationStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusError
}

func (s ValidationStatus) IsLive() bool {
	return s == StatusCreated || s == StatusRunning
}

func (s ValidationStatus) Valid() bool {
	return s.IsLive() || s.IsTerminal()
}

// Validation is the validation record of a resource. Report is only set for
// success and failure, Error only for error.
type Validation struct {
	ID         string           `gorm:"primaryKey;type:text"`
	ResourceID string           `gorm:"type:text;not null;index:idx_validation_resource_id"`
	Status     ValidationStatus `gorm:"type:varchar(20);not null;default:created"`
	Created    time.Time        `gorm:"column:created;not null"`
	Finished   sql.NullTime     `gorm:"column:finished"`
	Report     datatypes.JSON   `gorm:"type:jsonb"`
	Error      datatypes.JSON   `gorm:"column:error;type:jsonb"`
}

func (Validation) TableName() string {
	return "validation"
}

// ErrorPayload is the shape stored in Validation.Error.
type ErrorPayload struct {
	Message []string `json:"message"`
}

// ValidationDict is the public representation of a validation record.
type ValidationDict struct {
	ID         string           `json:"id"`
	ResourceID string           `json:"resource_id"`
	Status     ValidationStatus `json:"status"`
	Report     json.RawMessage  `json:"report"`
	Error      json.RawMessage  `json:"error"`
	Created    *string          `json:"created"`
	Finished   *string          `json:"finished"`
}

func rawOrNull(j datatypes.JSON) json.RawMessage {
	if len(j) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(j)
}

func (v *Validation) Dictize() ValidationDict {
	out := ValidationDict{
		ID:         v.ID,
		ResourceID: v.ResourceID,
		Status:     v.Status,
		Report:     rawOrNull(v.Report),
		Error:      rawOrNull(v.Error),
	}
	if !v.Created.IsZero() {
		out.Created = utils.ToPointer(utils.FormatISO(v.Created))
	}
	if v.Finished.Valid {
		out.Finished = utils.ToPointer(utils.FormatISO(v.Finished.Time))
	}
	return out
}

// DecodeReport unmarshals the stored report, returning nil when none is stored.
func (v *Validation) DecodeReport() (*Report, error) {
	if len(v.Report) == 0 || string(v.Report) == "null" {
		return nil, nil
	}
	var r Report
	if err := json.Unmarshal(v.Report, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeError unmarshals the stored error payload, returning nil when none is stored.
func (v *Validation) DecodeError() (*ErrorPayload, error) {
	if len(v.Error) == 0 || string(v.Error) == "null" {
		return nil, nil
	}
	var p ErrorPayload
	if err := json.Unmarshal(v.Error, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
