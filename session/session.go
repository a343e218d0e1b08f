// Package session issues and verifies the portal login cookie. The cookie
// carries an HS256 JWT naming the patient; passwords are bcrypt hashes.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	CookieName = "emr_session"
	DefaultTTL = 7 * 24 * time.Hour
	issuer     = "mini-emr"
)

// ErrNoSecret is returned by Issue when no signing secret is configured
var ErrNoSecret = errors.New("session secret is not configured")

// Claims is the signed payload of the session cookie
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// PatientID returns the subject as a patient id
func (c *Claims) PatientID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Manager signs, verifies and clears session cookies
type Manager struct {
	secret []byte
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

// NewManager returns a Manager. secure marks cookies for HTTPS only.
func NewManager(secret string, secure bool) *Manager {
	return &Manager{
		secret: []byte(secret),
		secure: secure,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
}

// Configured reports whether a signing secret is available
func (m *Manager) Configured() bool {
	return len(m.secret) > 0
}

// Issue signs a session for the patient and sets it on w
func (m *Manager) Issue(w http.ResponseWriter, patientID int64, email string) (*Claims, error) {
	if !m.Configured() {
		return nil, ErrNoSecret
	}

	now := m.now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(patientID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(m.ttl),
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return claims, nil
}

// Parse verifies a token and returns its claims
func (m *Manager) Parse(token string) (*Claims, error) {
	if !m.Configured() {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if _, err := claims.PatientID(); err != nil {
		return nil, fmt.Errorf("parse session: invalid subject %q", claims.Subject)
	}
	return claims, nil
}

// Clear expires the session cookie
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type contextKey struct{}

// Middleware attaches the claims of a valid session cookie to the request
// context. Requests without one pass through unchanged.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" || !m.Configured() {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.Parse(cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// WithClaims returns ctx carrying claims
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// FromContext returns the session claims, or nil when the request is anonymous
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}
