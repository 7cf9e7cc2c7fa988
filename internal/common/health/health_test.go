package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiChecker(t *testing.T) {
	checker := NewMultiChecker(CheckerFunc(func() error { return nil }))
	assert.NoError(t, checker.Check())

	checker.Add(CheckerFunc(func() error { return errors.New("cluster a not up") }))
	checker.Add(CheckerFunc(func() error { return errors.New("cluster b not up") }))

	assert.EqualError(t, checker.Check(), "cluster a not up\ncluster b not up")
}

func TestHealthCheckHttpHandler(t *testing.T) {
	var checkErr error
	mux := http.NewServeMux()
	SetupHttpMux(mux, CheckerFunc(func() error { return checkErr }))

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	checkErr = errors.New("not up")
	recorder = httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Equal(t, "not up", recorder.Body.String())
}
