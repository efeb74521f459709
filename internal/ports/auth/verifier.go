package auth

import "context"

// AuthVerifier valida un token de acceso contra el IAM de la historia
// clínica nacional y devuelve los claims del usuario.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
