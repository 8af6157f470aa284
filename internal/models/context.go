package models

import "context"

type profileContextKey struct{}

// WithClientProfile returns a context carrying the tenant profile resolved
// for the current call.
func WithClientProfile(ctx context.Context, profile *ClientProfile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, profile)
}

// ClientProfileFromContext returns the profile stored by WithClientProfile.
func ClientProfileFromContext(ctx context.Context) (*ClientProfile, bool) {
	profile, ok := ctx.Value(profileContextKey{}).(*ClientProfile)
	return profile, ok && profile != nil
}
