package httpx

import (
	"context"

	"github.com/aussiebroadwan/scagate/pkg/jwtx"
)

// HeaderPsuID carries the PSU id when no bearer token identifies the PSU.
const HeaderPsuID = "PSU-ID"

type ctxKey string

const (
	CtxKeyPsuID  ctxKey = "psu_id"
	CtxKeyClaims ctxKey = "claims"
)

// PsuIDFromContext returns the PSU id a verified bearer token named, or "".
func PsuIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyPsuID).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the verified token claims, if any.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyPsuID, c.PsuID())
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}
