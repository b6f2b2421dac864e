package http

import (
	"catalog-validation/internal/dto"
	"catalog-validation/internal/service"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupActions(base *echo.Group) {
	action := base.Group("/3/action")
	{
		action.POST("/resource_validation_run", h.runValidation)
		action.GET("/resource_validation_show", h.showValidation)
		action.POST("/resource_validation_delete", h.deleteValidation)
		action.POST("/resource_validation_run_batch", h.runValidationBatch)
	}
}

func (h *HttpAPIHandler) runValidation(c echo.Context) error {
	req := new(dto.ResourceValidationRunRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body", nil))
	}

	err := h.service.ValidationService.Run(c.Request().Context(), service.RunParam{
		ResourceID: req.ResourceID,
		Async:      req.Async,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Validation run started", nil))
}

func (h *HttpAPIHandler) showValidation(c echo.Context) error {
	validation, err := h.service.ValidationService.Show(c.Request().Context(), c.QueryParam("resource_id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Validation found", validation))
}

func (h *HttpAPIHandler) deleteValidation(c echo.Context) error {
	req := new(dto.ResourceValidationDeleteRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body", nil))
	}

	if err := h.service.ValidationService.Delete(c.Request().Context(), req.ResourceID); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Validation deleted", nil))
}

func (h *HttpAPIHandler) runValidationBatch(c echo.Context) error {
	req := new(dto.ResourceValidationRunBatchRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body", nil))
	}

	output, err := h.service.ValidationService.RunBatch(c.Request().Context(), service.BatchParam{
		DatasetIDs: req.DatasetIDs,
		Query:      req.Query,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse(output, dto.RunBatchResponse{Output: output}))
}
