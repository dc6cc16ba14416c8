package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	jwtlib "ChatApp/tools/security"

	"github.com/gin-gonic/gin"
)

func testEngine(opts jwtlib.Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/whoami", Middleware(opts), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return engine
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	opts := jwtlib.DefaultOptions([]byte("test-secret"))
	token, _, err := jwtlib.Generate(opts, "user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	testEngine(opts).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "user-1" {
		t.Fatalf("user id = %q, want user-1", w.Body.String())
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	opts := jwtlib.DefaultOptions([]byte("test-secret"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	testEngine(opts).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMiddlewareRejectsForgedToken(t *testing.T) {
	opts := jwtlib.DefaultOptions([]byte("test-secret"))
	forged, _, err := jwtlib.Generate(jwtlib.DefaultOptions([]byte("other-secret")), "user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	testEngine(opts).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
