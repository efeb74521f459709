package hcen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinical-doc-access/internal/ports/auth"
)

var (
	ErrTokenEmpty = errors.New("token is empty")
)

// Verifier implementa auth.AuthVerifier contra el IAM de la plataforma.
// No se integra automáticamente; se instancia desde main/router.
type Verifier struct {
	client *Client
}

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.client == nil {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	claims, err := v.client.VerifyToken(ctx, token)
	if err != nil {
		// El middleware decide si corta o no; acá solo se normaliza.
		return auth.Claims{}, fmt.Errorf("hcen verify failed: %w", err)
	}

	if claims.UserID == "" {
		return auth.Claims{}, errors.New("hcen claims missing user id")
	}

	return claims, nil
}
