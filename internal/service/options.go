package service

import (
	"catalog-validation/internal/engine"
	"catalog-validation/internal/model"
	"catalog-validation/pkg/utils"
	"fmt"
)

// resourceValidationOptions overlays the resource's validation_options on
// the configured defaults.
func resourceValidationOptions(defaults map[string]interface{}, resource *model.Resource) (engine.Options, error) {
	merged := make(map[string]interface{}, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}

	value, err := utils.DecodeJSONValue(resource.ValidationOptions)
	if err != nil {
		return engine.Options{}, fmt.Errorf("invalid validation_options: %w", err)
	}
	switch opts := value.(type) {
	case nil:
	case map[string]interface{}:
		for k, v := range opts {
			merged[k] = v
		}
	default:
		return engine.Options{}, fmt.Errorf("validation_options must be an object, got %T", value)
	}

	return engine.DecodeOptions(merged)
}
