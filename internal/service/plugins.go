package service

import (
	"catalog-validation/internal/contract"
	"catalog-validation/internal/model"
	"catalog-validation/pkg/logger"
	"context"
	"fmt"
)

// PluginRegistry calls the registered DataValidation plugins in
// registration order.
type PluginRegistry struct {
	log     *logger.Logger
	plugins []contract.DataValidation
}

func NewPluginRegistry(log *logger.Logger, plugins ...contract.DataValidation) *PluginRegistry {
	return &PluginRegistry{log: log, plugins: plugins}
}

// CanValidate is true when no plugin vetoes the resource.
func (r *PluginRegistry) CanValidate(ctx context.Context, resource *model.Resource) bool {
	for _, p := range r.plugins {
		if !p.CanValidate(ctx, resource) {
			r.log.DebugContext(ctx, "Validation vetoed by plugin",
				logger.ResourceField(resource.ID),
				logger.StringField("plugin", fmt.Sprintf("%T", p)),
			)
			return false
		}
	}
	return true
}

// CreateMode threads mode through every plugin's SetCreateMode.
func (r *PluginRegistry) CreateMode(ctx context.Context, resource *model.Resource, mode string) string {
	for _, p := range r.plugins {
		mode = p.SetCreateMode(ctx, resource, mode)
	}
	return mode
}

// UpdateMode threads mode through every plugin's SetUpdateMode.
func (r *PluginRegistry) UpdateMode(ctx context.Context, resource *model.Resource, mode string) string {
	for _, p := range r.plugins {
		mode = p.SetUpdateMode(ctx, resource, mode)
	}
	return mode
}

// NotifyReport hands validation to every plugin and stops at the first error.
func (r *PluginRegistry) NotifyReport(ctx context.Context, validation model.ValidationDict) error {
	for _, p := range r.plugins {
		if err := p.ReceiveValidationReport(ctx, validation); err != nil {
			return fmt.Errorf("validation report observer %T: %w", p, err)
		}
	}
	return nil
}
