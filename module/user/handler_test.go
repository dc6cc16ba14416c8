package user

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sec "ChatApp/middleware/security"

	"github.com/gin-gonic/gin"
)

// asUser stands in for the JWT middleware in handler tests.
func asUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) { c.Set(sec.CtxUserKey, id) }
}

// The guard paths below reject before the service is ever consulted, so a
// nil service is fine; a reaching call would panic the test.
func testEngine(userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := NewHandler(nil)
	public := engine.Group("/api")
	protected := engine.Group("/api", asUser(userID))
	h.Mount(public, protected)
	return engine
}

func TestRegisterRejectsBadBody(t *testing.T) {
	cases := []string{
		`{`,
		`{}`,
		`{"email":"a@b.c","name":"A"}`, // password missing
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		testEngine("u1").ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestGoogleLoginRejectsBadBody(t *testing.T) {
	cases := []string{
		`{`,
		`{}`,
		`{"googleId":"g-1","email":"a@b.c"}`, // name missing
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/google", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		testEngine("u1").ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestLoginRejectsBadBody(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c"}`))
	req.Header.Set("Content-Type", "application/json")
	testEngine("u1").ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateForeignProfileForbidden(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/users/other-user", strings.NewReader(`{"name":"X"}`))
	req.Header.Set("Content-Type", "application/json")
	testEngine("u1").ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestUpdateOwnProfileRejectsBadBody(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/users/u1", strings.NewReader(`not json`))
	req.Header.Set("Content-Type", "application/json")
	testEngine("u1").ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
