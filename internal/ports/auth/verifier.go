package auth

import "context"

// AuthVerifier verifica un token y devuelve claims o error.
// Los errores de token inválido envuelven apperr.ErrUnauthorized.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// VerifierFunc adapta una función a AuthVerifier.
type VerifierFunc func(ctx context.Context, token string) (Claims, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (Claims, error) {
	return f(ctx, token)
}
