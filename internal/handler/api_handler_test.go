// internal/handler/api_handler_test.go
package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-gateway/internal/api"
)

type httpFixture struct {
	router     *gin.Engine
	getInvoked bool
	setInvoked bool
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &httpFixture{}

	server := api.NewServer(zap.NewNop(), "")
	server.RegisterMethod("sys/info", api.NewMethod(api.MethodGet,
		func(args map[string]interface{}) (map[string]interface{}, error) {
			f.getInvoked = true
			return map[string]interface{}{"version": "1.0"}, nil
		}).Desc("System info").Build())
	server.RegisterMethod("sys/mutate", api.NewMethod(api.MethodSet,
		func(args map[string]interface{}) (map[string]interface{}, error) {
			f.setInvoked = true
			return map[string]interface{}{"done": true}, nil
		}).Desc("Mutate state").Build())

	h := NewAPIHandler(server, zap.NewNop())
	f.router = gin.New()
	h.RegisterRoutes(f.router.Group("/v1"))
	return f
}

func (f *httpFixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHandleGetExecutesGetMethod(t *testing.T) {
	f := newHTTPFixture(t)

	w := f.do(http.MethodGet, "/v1/api/sys/info", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if !f.getInvoked {
		t.Fatal("GET handler was not invoked")
	}
}

func TestHandleGetRejectsSetMethod(t *testing.T) {
	f := newHTTPFixture(t)

	w := f.do(http.MethodGet, "/v1/api/sys/mutate", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405, body %s", w.Code, w.Body.String())
	}
	if f.setInvoked {
		t.Fatal("SET handler must not run on an HTTP GET")
	}
}

func TestHandleSetExecutesSetMethod(t *testing.T) {
	f := newHTTPFixture(t)

	w := f.do(http.MethodPost, "/v1/api/sys/mutate", `{"value":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if !f.setInvoked {
		t.Fatal("SET handler was not invoked")
	}
}

func TestHandleSetRejectsGetMethod(t *testing.T) {
	f := newHTTPFixture(t)

	w := f.do(http.MethodPost, "/v1/api/sys/info", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405, body %s", w.Code, w.Body.String())
	}
	if f.getInvoked {
		t.Fatal("GET handler must not run on an HTTP POST")
	}
}

func TestHandleGetUnknownPath(t *testing.T) {
	f := newHTTPFixture(t)

	w := f.do(http.MethodGet, "/v1/api/no/such", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", w.Code, w.Body.String())
	}
}

func TestHandleGetRootServesDoc(t *testing.T) {
	f := newHTTPFixture(t)

	w := f.do(http.MethodGet, "/v1/api/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	for _, path := range []string{"sys/info", "sys/mutate"} {
		if !strings.Contains(w.Body.String(), path) {
			t.Errorf("self-description missing %q", path)
		}
	}
}
