// README: Firebase Admin SDK app, ID token verification and role claims.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// RoleClaim is the custom claim carrying the marketplace role.
const RoleClaim = "role"

type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// Role returns the role claim, empty when the token has none.
func (t *FirebaseToken) Role() string {
	r, _ := t.Claims[RoleClaim].(string)
	return r
}

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

// NewFirebaseApp uses credentialsFile when set, application-default
// credentials otherwise.
func NewFirebaseApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	return app, nil
}

// FirebaseAuth verifies ID tokens and manages the role claim.
type FirebaseAuth struct {
	client *auth.Client
}

func NewFirebaseAuth(ctx context.Context, app *firebase.App) (*FirebaseAuth, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &FirebaseAuth{client: client}, nil
}

func (a *FirebaseAuth) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}

// SetRole replaces the user's custom claims with {role: role}. It takes
// effect on the user's next token refresh.
func (a *FirebaseAuth) SetRole(ctx context.Context, uid, role string) error {
	if err := a.client.SetCustomUserClaims(ctx, uid, map[string]interface{}{RoleClaim: role}); err != nil {
		return fmt.Errorf("set role claim for %s: %w", uid, err)
	}
	return nil
}
