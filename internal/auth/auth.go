package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

// Identity is the principal attached to a connection
type Identity struct {
	UserID        string
	Username      string
	Authenticated bool
}

// Anonymous returns the placeholder identity used for unauthenticated connections
func Anonymous() Identity {
	return Identity{Username: "Anonymous"}
}

// Authenticator validates client tokens.
// A token is base64url(userID|username|hex(hmac-sha256(secret, userID|username))).
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator with the shared HMAC secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate resolves the identity for an incoming connection request.
// The token is taken from the "token" query parameter or a bearer
// Authorization header. A missing or invalid token yields the anonymous
// identity with ok=false; the connection itself is still accepted.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		return Anonymous(), false
	}

	identity, err := a.Verify(token)
	if err != nil {
		return Anonymous(), false
	}
	return identity, true
}

// Verify decodes and validates a token, returning the embedded identity
func (a *Authenticator) Verify(token string) (Identity, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Anonymous(), ErrInvalidToken
	}

	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return Anonymous(), ErrInvalidToken
	}
	userID, username, signature := parts[0], parts[1], parts[2]
	if userID == "" || username == "" {
		return Anonymous(), ErrInvalidToken
	}

	if !hmac.Equal([]byte(signature), []byte(a.sign(userID, username))) {
		return Anonymous(), ErrBadSignature
	}

	return Identity{UserID: userID, Username: username, Authenticated: true}, nil
}

// Token mints a signed token for the given user. Used by tests and by
// whatever issues credentials to clients.
func (a *Authenticator) Token(userID, username string) string {
	payload := userID + "|" + username + "|" + a.sign(userID, username)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func (a *Authenticator) sign(userID, username string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(userID + "|" + username))
	return hex.EncodeToString(mac.Sum(nil))
}
