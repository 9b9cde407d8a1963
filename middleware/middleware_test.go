package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gameplace/globals"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
)

func signTestToken(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		Role:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(globals.JwtSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func okHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, _ := r.Context().Value(globals.UserIDKey).(string)
	w.Write([]byte(userID))
}

func TestAuthenticate(t *testing.T) {
	h := Authenticate(okHandler)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", signTestToken(t, "u1"), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req, nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusOK && rec.Body.String() != "u1" {
				t.Fatalf("user id not propagated: %q", rec.Body.String())
			}
		})
	}
}

func TestAuthenticateRejectsExpired(t *testing.T) {
	claims := Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(globals.JwtSecret)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Authenticate(okHandler)(rec, req, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token accepted: %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	h := Authenticate(RequireAdmin(okHandler))

	for _, tc := range []struct {
		name  string
		roles []string
		want  int
	}{
		{"user", []string{"user"}, http.StatusForbidden},
		{"admin", []string{"user", "admin"}, http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("Authorization", signTestToken(t, "u1", tc.roles...))
			rec := httptest.NewRecorder()
			h(rec, req, nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
