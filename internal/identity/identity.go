// Package identity carries the acting company and user through the request
// context. Authentication itself happens upstream; this subsystem only needs
// the identifiers to scope every query by tenant.
package identity

import "context"

type Identity struct {
	CompanyID string
	UserID    string
}

type ctxKey struct{}

func With(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func From(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.CompanyID != ""
}
