// Package identity abstracts the hosted sign-in provider. The service
// never handles credentials itself: it receives an Identity after a
// successful sign-in and provisions the user record from it.
package identity

import "context"

// Identity is what the provider supplies on successful sign-in.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Provider is an OAuth-style sign-in flow: send the user to AuthCodeURL,
// then exchange the returned code for their identity.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}
