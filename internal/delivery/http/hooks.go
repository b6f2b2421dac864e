package http

import (
	"catalog-validation/internal/dto"
	"catalog-validation/pkg/common"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupHooks(base *echo.Group) {
	hooks := base.Group("/v1/hooks")
	{
		hooks.POST("/resource", h.resourceEvent)
	}
}

func (h *HttpAPIHandler) resourceEvent(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.ResourceEventRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body", nil))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error(), nil))
	}

	// updates written by the validation job itself carry this header
	performed, _ := strconv.ParseBool(c.Request().Header.Get(common.HEADER_VALIDATION_DONE))

	events := h.service.ResourceEvents
	var err error
	switch req.Event {
	case dto.EventResourceCreated:
		err = events.OnResourceCreated(ctx, req.Resource)
	case dto.EventResourceUpdated:
		err = events.OnResourceUpdated(ctx, req.Previous, req.Resource, performed)
	case dto.EventResourceDeleted:
		err = events.OnResourceDeleted(ctx, req.Resource.ID)
	case dto.EventDatasetCreated:
		err = events.OnDatasetCreated(ctx, req.Dataset)
	}
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Event processed", nil))
}
