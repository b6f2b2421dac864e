package http

import (
	"catalog-validation/internal/dto"
	"catalog-validation/internal/service"
	"catalog-validation/pkg/logger"
	"context"
	"errors"
	"net/http"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HttpAPIHandler struct {
	echo      *echo.Echo
	validator *goValidator.Validate
	log       *logger.Logger
	service   *service.Service
}

func NewHttpAPIHandler(ctx context.Context, echo *echo.Echo, validator *goValidator.Validate, log *logger.Logger, service *service.Service) *HttpAPIHandler {
	return &HttpAPIHandler{
		echo:      echo,
		validator: validator,
		log:       log,
		service:   service,
	}
}

func (h *HttpAPIHandler) SetupRoutes() {
	h.echo.GET("/healthz", h.healthz)
	h.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	base := h.echo.Group("/api", middleware.RequestID(), h.requestLogger)
	h.SetupActions(base)
	h.SetupHooks(base)
}

// requestLogger scopes the context logger to the request.
func (h *HttpAPIHandler) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logger.NewContext(req.Context(),
			logger.StringField("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			logger.StringField("path", c.Path()),
		)
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (h *HttpAPIHandler) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", nil))
}

// writeError maps service errors onto the response envelope.
func (h *HttpAPIHandler) writeError(c echo.Context, err error) error {
	var (
		verr   *service.ValidationError
		failed *service.ValidationFailedError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("Validation error", verr.Errors))
	case errors.As(err, &failed):
		return c.JSON(http.StatusConflict, dto.NewValidationFailedResponse(failed.Error(), dto.ValidationFailure{
			ResourceID: failed.ResourceID,
			Status:     failed.Status,
			Report:     failed.Report,
			Error:      failed.Payload,
		}))
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, dto.NewNotFoundResponse(err.Error()))
	default:
		h.log.ErrorContext(c.Request().Context(), "Request failed", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.NewInternalErrorResponse(err.Error()))
	}
}
