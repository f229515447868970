package authorize

import (
	"context"
)

type key int

const userKey key = iota

// MembershipChecker answers whether user belongs to group.
type MembershipChecker interface {
	IsMemberOfGroup(ctx context.Context, group, user string) (bool, error)
}

// WithUser stores the authenticated user name in ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey).(string)
	return user, ok
}
