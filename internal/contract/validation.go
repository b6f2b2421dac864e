package contract

import (
	"catalog-validation/internal/model"
	"context"
)

// DataValidation lets extensions take part in the validation flow of a resource.
type DataValidation interface {
	// CanValidate vetoes validation of resource by returning false.
	CanValidate(ctx context.Context, resource *model.Resource) bool
	// SetCreateMode receives the mode chosen so far for a new resource and returns the mode to use.
	SetCreateMode(ctx context.Context, resource *model.Resource, mode string) string
	// SetUpdateMode is SetCreateMode for updated resources.
	SetUpdateMode(ctx context.Context, resource *model.Resource, mode string) string
	// ReceiveValidationReport is called with every finished validation.
	ReceiveValidationReport(ctx context.Context, validation model.ValidationDict) error
}

// BasePlugin is a DataValidation that changes nothing. Embed it to
// implement only some of the hooks.
type BasePlugin struct{}

func (BasePlugin) CanValidate(context.Context, *model.Resource) bool { return true }

func (BasePlugin) SetCreateMode(_ context.Context, _ *model.Resource, mode string) string {
	return mode
}

func (BasePlugin) SetUpdateMode(_ context.Context, _ *model.Resource, mode string) string {
	return mode
}

func (BasePlugin) ReceiveValidationReport(context.Context, model.ValidationDict) error { return nil }
