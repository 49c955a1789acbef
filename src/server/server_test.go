package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRouterHealthcheck(t *testing.T) {
	rr := httptest.NewRecorder()
	NewRouter(Routes{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestNewRouterMountsReportRoutes(t *testing.T) {
	hit := map[string]int{}
	mark := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			hit[name]++
			w.WriteHeader(http.StatusNoContent)
		}
	}
	router := NewRouter(Routes{
		ActiveSignals: mark("signals"),
		OpenTrades:    mark("open"),
		Trades:        mark("trades"),
		Performance:   mark("performance"),
	})

	for _, path := range []string{"/signals/active", "/trades/open", "/trades", "/performance"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNoContent, rr.Code, path)
	}
	assert.Equal(t, map[string]int{"signals": 1, "open": 1, "trades": 1, "performance": 1}, hit)
}

func TestNewRouterSkipsNilRoutes(t *testing.T) {
	rr := httptest.NewRecorder()
	NewRouter(Routes{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/trades", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
