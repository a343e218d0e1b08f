package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("janepass")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "janepass" || !strings.HasPrefix(hash, "$2") {
		t.Errorf("unexpected hash %q", hash)
	}
	if !CheckPassword(hash, "janepass") {
		t.Error("CheckPassword should accept the right password")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("CheckPassword should reject a wrong password")
	}
	if CheckPassword("not-a-hash", "janepass") {
		t.Error("CheckPassword should reject a malformed hash")
	}
}

func issueCookie(t *testing.T, m *Manager) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	if _, err := m.Issue(rr, 3, "jane@example.com"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	return cookies[0]
}

func TestIssueAndParse(t *testing.T) {
	m := NewManager(testSecret, true)
	cookie := issueCookie(t, m)

	if cookie.Name != CookieName || !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected cookie attributes: %+v", cookie)
	}

	claims, err := m.Parse(cookie.Value)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	id, err := claims.PatientID()
	if err != nil || id != 3 {
		t.Errorf("PatientID() = %d, %v", id, err)
	}
	if claims.Email != "jane@example.com" || claims.ID == "" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != DefaultTTL {
		t.Errorf("ttl = %s, want %s", got, DefaultTTL)
	}
}

func TestParseRejects(t *testing.T) {
	m := NewManager(testSecret, false)
	valid := issueCookie(t, m).Value

	other := NewManager("ffffffffffffffffffffffffffffffff", false)
	if _, err := other.Parse(valid); err == nil {
		t.Error("token signed with another secret must be rejected")
	}

	if _, err := m.Parse(valid + "x"); err == nil {
		t.Error("tampered token must be rejected")
	}

	expired := NewManager(testSecret, false)
	expired.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Hour) }
	if _, err := expired.Parse(valid); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "3", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := m.Parse(none); err == nil {
		t.Error("alg=none token must be rejected")
	}
}

func TestUnconfiguredManager(t *testing.T) {
	m := NewManager("", false)

	if m.Configured() {
		t.Error("empty secret should not be configured")
	}
	if _, err := m.Issue(httptest.NewRecorder(), 1, "a@example.com"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}

func TestClear(t *testing.T) {
	rr := httptest.NewRecorder()
	NewManager(testSecret, false).Clear(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].MaxAge >= 0 {
		t.Errorf("expected an expiring session cookie, got %+v", cookies)
	}
}

func TestMiddleware(t *testing.T) {
	m := NewManager(testSecret, false)
	cookie := issueCookie(t, m)

	var seen *Claims
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	tests := []struct {
		name   string
		cookie *http.Cookie
		want   bool
	}{
		{"no cookie", nil, false},
		{"garbage cookie", &http.Cookie{Name: CookieName, Value: "garbage"}, false},
		{"valid cookie", cookie, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/portal/me", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if (seen != nil) != tt.want {
				t.Errorf("claims present = %v, want %v", seen != nil, tt.want)
			}
		})
	}
}
