package middleware

import (
	"context"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/anonto42/shelfstream/internal/models"
)

// IDTokenVerifier is the part of the firebase auth client used here
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier accepts Firebase ID tokens. The Firebase UID becomes the
// user id; email and access_level come from the token claims.
type FirebaseVerifier struct {
	client IDTokenVerifier
}

func NewFirebaseVerifier(client IDTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*models.JwtCustomClaims, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, errors.Wrap(err, "invalid or expired ID token")
	}
	claims := &models.JwtCustomClaims{UserID: token.UID, AccessLevel: models.AccessUser}
	if email, ok := token.Claims["email"].(string); ok {
		claims.Email = email
	}
	if lvl, ok := token.Claims["access_level"].(string); ok && lvl != "" {
		claims.AccessLevel = models.AccessLevel(lvl)
	}
	return claims, nil
}

// FirebaseAuthMiddleware creates an Echo middleware to verify Firebase ID tokens
func FirebaseAuthMiddleware(client IDTokenVerifier) echo.MiddlewareFunc {
	return Auth(NewFirebaseVerifier(client))
}
