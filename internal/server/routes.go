package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const MAX_SERVICE_BODY_BYTES = 64 * 1024

type errorResponse struct {
	Service string `json:"service,omitempty"`
	Error   string `json:"error"`
}

type serviceResponse struct {
	Service string                `json:"service"`
	Success bool                  `json:"success"`
	Summary domain.TrackerSummary `json:"summary"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/state", s.StateHandler)
	api.GET("/diagnostics", s.DiagnosticsHandler)
	api.POST("/services/:name", s.ServiceHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, s.requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetTrackerStateRequest{}, s.requestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetTrackerStateResponse)
	if !ok || response.HasResponseError() {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not get tracker state"})
	}
	return c.JSON(http.StatusOK, response.Summary)
}

func (s *Server) DiagnosticsHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetDiagnosticsRequest{}, s.requestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetDiagnosticsResponse)
	if !ok || response.HasResponseError() {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not get diagnostics"})
	}
	return c.JSON(http.StatusOK, response.Diagnostics)
}

func (s *Server) ServiceHandler(c echo.Context) error {
	name := c.Param("name")
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, MAX_SERVICE_BODY_BYTES))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Service: name, Error: err.Error()})
	}

	req, err := domain.ParseServiceCall(name, body)
	if err != nil {
		return c.JSON(serviceErrorStatus(err), errorResponse{Service: name, Error: err.Error()})
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, req, s.requestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Service: name, Error: err.Error()})
	}
	response, ok := res.(domain.ServiceResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Service: name, Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(serviceErrorStatus(response.GetResponseError()), errorResponse{Service: name, Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, serviceResponse{
		Service: response.Service,
		Success: true,
		Summary: response.Summary,
	})
}

func serviceErrorStatus(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownService):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
