package auth

// Claims representa la información extraída del token.
// UserID es la cédula del paciente o el id del profesional, según quién llama.
type Claims struct {
	UserID string
	Email  string
	Role   string
}
