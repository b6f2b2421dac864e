package service

import (
	"catalog-validation/config"
	"catalog-validation/internal/model"
	"catalog-validation/pkg/logger"
	"catalog-validation/pkg/utils"
	"context"
	"encoding/json"
	"errors"
	"reflect"
)

// ResourceEvents reacts to resource lifecycle events coming from the catalog.
type ResourceEvents interface {
	CouldBeValidated(ctx context.Context, resource *model.Resource) bool
	RequiresValidation(ctx context.Context, previous, current *model.Resource) bool
	OnResourceCreated(ctx context.Context, resource *model.Resource) error
	// OnResourceUpdated is a no-op when performed is set, which marks updates
	// made by the validation job itself.
	OnResourceUpdated(ctx context.Context, previous, current *model.Resource, performed bool) error
	OnResourceDeleted(ctx context.Context, resourceID string) error
	OnDatasetCreated(ctx context.Context, dataset *model.Dataset) error
}

type resourceEvents struct {
	cfg            *config.Config
	log            *logger.Logger
	plugins        *PluginRegistry
	dispatcher   Dispatcher
	statusHelper StatusHelper
}

func NewResourceEvents(
	cfg *config.Config,
	log *logger.Logger,
	plugins *PluginRegistry,
	dispatcher Dispatcher,
	statusHelper StatusHelper,
) ResourceEvents {
	return &resourceEvents{
		cfg:          cfg,
		log:          log,
		plugins:      plugins,
		dispatcher:   dispatcher,
		statusHelper: statusHelper,
	}
}

func (h *resourceEvents) CouldBeValidated(ctx context.Context, resource *model.Resource) bool {
	if !h.plugins.CanValidate(ctx, resource) {
		return false
	}
	if resource.LowerFormat() == "" {
		h.log.InfoContext(ctx, "Missing resource format. Skipping validation", logger.ResourceField(resource.ID))
		return false
	}
	if !utils.ContainsString(h.cfg.Validation.SupportedFormats(), resource.LowerFormat()) {
		return false
	}
	return resource.IsUpload() || resource.Upload || resource.URL != ""
}

func (h *resourceEvents) RequiresValidation(ctx context.Context, previous, current *model.Resource) bool {
	log := h.log.With(logger.ResourceField(current.ID))

	if !h.plugins.CanValidate(ctx, current) {
		return false
	}
	if current.LowerFormat() == "" {
		log.InfoContext(ctx, "Missing resource format. Skipping validation")
		return false
	}

	switch {
	case current.Upload:
		log.InfoContext(ctx, "New resource file. Validation required")
		return true
	case current.URL != previous.URL:
		log.InfoContext(ctx, "New resource url. Validation required")
		return true
	case !sameJSON(current.Schema, previous.Schema):
		log.InfoContext(ctx, "Schema has been updated. Validation required")
		return true
	case current.LowerFormat() != previous.LowerFormat() &&
		utils.ContainsString(h.cfg.Validation.SupportedFormats(), current.LowerFormat()):
		log.InfoContext(ctx, "Format has been changed. Validation required")
		return true
	case !sameJSON(current.ValidationOptions, previous.ValidationOptions):
		log.InfoContext(ctx, "Validation options have been updated. Validation required")
		return true
	}
	return false
}

func (h *resourceEvents) OnResourceCreated(ctx context.Context, resource *model.Resource) error {
	if !h.CouldBeValidated(ctx, resource) {
		return nil
	}
	mode := h.plugins.CreateMode(ctx, resource, h.cfg.Validation.DefaultCreateMode)
	return h.dispatcher.Dispatch(ctx, resource, mode)
}

func (h *resourceEvents) OnResourceUpdated(ctx context.Context, previous, current *model.Resource, performed bool) error {
	if performed {
		return nil
	}
	if previous == nil {
		return h.OnResourceCreated(ctx, current)
	}
	if !h.RequiresValidation(ctx, previous, current) {
		return nil
	}
	mode := h.plugins.UpdateMode(ctx, current, h.cfg.Validation.DefaultUpdateMode)
	if mode == config.ModeAsync && !h.CouldBeValidated(ctx, current) {
		return nil
	}
	return h.dispatcher.Dispatch(ctx, current, mode)
}

func (h *resourceEvents) OnResourceDeleted(ctx context.Context, resourceID string) error {
	deleted, err := h.statusHelper.DeleteResourceJobs(ctx, resourceID)
	if err != nil {
		return err
	}
	if deleted > 0 {
		h.log.InfoContext(ctx, "Validation record deleted", logger.ResourceField(resourceID))
	}
	return nil
}

// OnDatasetCreated validates every resource of a new dataset.
func (h *resourceEvents) OnDatasetCreated(ctx context.Context, dataset *model.Dataset) error {
	var errs []error
	for i := range dataset.Resources {
		resource := &dataset.Resources[i]
		if resource.PackageID == "" {
			resource.PackageID = dataset.ID
		}
		if err := h.OnResourceCreated(ctx, resource); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sameJSON compares two raw values by their decoded form, so formatting
// and JSON string wrapping do not count as changes.
func sameJSON(a, b json.RawMessage) bool {
	left, errA := utils.DecodeJSONValue(a)
	right, errB := utils.DecodeJSONValue(b)
	if errA != nil || errB != nil {
		return string(a) == string(b)
	}
	return reflect.DeepEqual(emptyAsNil(left), emptyAsNil(right))
}

func emptyAsNil(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 0 {
			return nil
		}
	case string:
		if val == "" {
			return nil
		}
	}
	return v
}
