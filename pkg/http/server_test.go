package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rangeQuery struct {
	Min float64 `query:"min" default:"1" validate:"gt=0"`
	Max float64 `query:"max" default:"10" validate:"gtfield=Min"`
}

type probeHandler struct{}

func (probeHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/range", func(c echo.Context) error {
		var q rangeQuery
		if errs := ReadAndValidateRequest(c, &q); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, q)
	})
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("nothing yet"))
	})
	e.GET("/panic", func(c echo.Context) error { panic("boom") })
}

func serve(t *testing.T, s *Server, target string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestServerEnvelopeAndValidation(t *testing.T) {
	s := NewServer(Handlers{probeHandler{}}, WithMetrics(false))

	rec, body := serve(t, s, "/range")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, body.Status)
	assert.Equal(t, map[string]interface{}{"Min": 1.0, "Max": 10.0}, body.Data)

	rec, body = serve(t, s, "/range?min=5&max=2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errs := body.Data.([]interface{})
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_GTFIELD", errs[0].(map[string]interface{})["code"])
	assert.Equal(t, "max", errs[0].(map[string]interface{})["field"])

	rec, body = serve(t, s, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", body.Message)
}

func TestServerRecoversPanics(t *testing.T) {
	s := NewServer(probeHandler{}, WithMetrics(false))
	rec, body := serve(t, s, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, body.Status)
}

func TestServerStartFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	s := NewServer(nil, WithHost("127.0.0.1"), WithPort(port), WithMetrics(false))
	assert.Error(t, s.Start())
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(probeHandler{}, WithHost("127.0.0.1"), WithPort(0), WithMetrics(false))
	require.NoError(t, s.Start())
	assert.NotEmpty(t, s.Addr())
	require.NoError(t, s.Stop(context.Background()))
}
