package dto

import "catalog-validation/internal/model"

const (
	EventResourceCreated = "created"
	EventResourceUpdated = "updated"
	EventResourceDeleted = "deleted"
	EventDatasetCreated  = "dataset_created"
)

type ResourceValidationRunRequest struct {
	ResourceID string `json:"resource_id"`
	Async      *bool  `json:"async"`
}

type ResourceValidationDeleteRequest struct {
	ResourceID string `json:"resource_id"`
}

// ResourceValidationRunBatchRequest takes dataset_ids as an id, a list or a
// JSON encoded list, and query as an object or its JSON encoding.
type ResourceValidationRunBatchRequest struct {
	DatasetIDs interface{} `json:"dataset_ids"`
	Query      interface{} `json:"query"`
}

type RunBatchResponse struct {
	Output string `json:"output"`
}

// ResourceEventRequest is posted by the catalog when a resource changes.
// Previous is the resource before an update.
type ResourceEventRequest struct {
	Event    string          `json:"event" validate:"required,oneof=created updated deleted dataset_created"`
	Resource *model.Resource `json:"resource" validate:"required_unless=Event dataset_created"`
	Previous *model.Resource `json:"previous"`
	Dataset  *model.Dataset  `json:"dataset" validate:"required_if=Event dataset_created"`
}

// ValidationFailure is the body of a rejected synchronous validation.
type ValidationFailure struct {
	ResourceID string                 `json:"resource_id"`
	Status     model.ValidationStatus `json:"status"`
	Report     *model.Report          `json:"report,omitempty"`
	Error      *model.ErrorPayload    `json:"error,omitempty"`
}
