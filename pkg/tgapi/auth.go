package tgapi

import (
	"context"
	"errors"
	"net/http"
)

// AuthService exchanges the identity token for a user profile.
type AuthService struct {
	client *Client
}

// Login validates the configured identity token with the backend.
//
// Returns (nil, nil) when no token is configured or the backend rejects it;
// only transport failures are reported as errors.
func (s *AuthService) Login(ctx context.Context) (*User, error) {
	token := s.client.token()
	if token == "" {
		return nil, nil
	}

	var resp loginResponse
	err := s.client.call(ctx, request{
		op:      "auth.login",
		method:  http.MethodPost,
		path:    "/api/auth/login",
		body:    loginRequest{InitData: token},
		timeout: playlistTimeout,
	}, &resp)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			s.client.logDebugf("tgapi: login rejected: %v", apiErr)
			return nil, nil
		}
		return nil, err
	}

	return resp.User, nil
}
