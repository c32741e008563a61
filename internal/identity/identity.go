// internal/identity/identity.go
package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName holds the signed player token.
const CookieName = "player_token"

// QueryParam carries the token for clients that cannot hold cookies.
const QueryParam = "token"

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid player token")

// Issuer signs and verifies player tokens. A token's "sub" claim is the
// stable player identity.
type Issuer struct {
	method  jwt.SigningMethod
	signKey interface{}
	verKey  interface{}
	expire  time.Duration // 0 => never
	now     func() time.Time
}

// NewIssuer returns an HMAC issuer when secret is set. With an empty secret
// a fresh ed25519 key pair is generated, so tokens only survive as long as
// the process.
func NewIssuer(secret string, expire time.Duration) (*Issuer, error) {
	iss := &Issuer{expire: expire, now: time.Now}
	if secret != "" {
		iss.method = jwt.SigningMethodHS256
		iss.signKey = []byte(secret)
		iss.verKey = []byte(secret)
		return iss, nil
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	iss.method = jwt.SigningMethodEdDSA
	iss.signKey = priv
	iss.verKey = pub
	return iss, nil
}

// CreateToken signs a token for the given player.
func (iss *Issuer) CreateToken(playerID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": playerID.String(),
		"iat": iss.now().Unix(),
	}
	if iss.expire > 0 {
		claims["exp"] = iss.now().Add(iss.expire).Unix()
	}
	return jwt.NewWithClaims(iss.method, claims).SignedString(iss.signKey)
}

// Authenticate verifies a token and returns the player it names.
func (iss *Issuer) Authenticate(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != iss.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return iss.verKey, nil
	}, jwt.WithTimeFunc(iss.now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed sub: %v", ErrInvalidToken, err)
	}
	return id, nil
}

// EnsurePlayer resolves the caller's player identity from the token cookie
// or query parameter. Callers without a valid token get a fresh identity
// and a new cookie on w, so it must run before the response is written.
func (iss *Issuer) EnsurePlayer(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if token := requestToken(r); token != "" {
		if id, err := iss.Authenticate(token); err == nil {
			return id, nil
		}
	}

	id := uuid.New()
	token, err := iss.CreateToken(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create player token: %w", err)
	}
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if iss.expire > 0 {
		cookie.MaxAge = int(iss.expire.Seconds())
	}
	http.SetCookie(w, cookie)
	return id, nil
}

func requestToken(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get(QueryParam)
}
