package platform

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/felixgeelhaar/qrlink/internal/domain"
	"github.com/felixgeelhaar/qrlink/internal/errors"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        domain.User `json:"user"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is decoded loosely: servers either echo the user or
// wrap it with a message.
type RegisterResponse struct {
	User    *domain.User
	Message string
}

// Login exchanges credentials for an access token and user profile.
// It does not touch the session; callers hand the result to it.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.Do(ctx, "/auth/login", RequestOptions{
		Method: http.MethodPost,
		Body:   LoginRequest{Username: username, Password: password},
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, errors.New(errors.ErrCodeRequestFailed, "Login response did not include an access token")
	}
	if err := resp.User.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRequestFailed, "Login response did not include a valid user", err)
	}

	return &resp, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	resp, err := c.Request(ctx, "/auth/register", RequestOptions{
		Method: http.MethodPost,
		Body:   req,
	})
	if err != nil {
		return nil, err
	}

	out := &RegisterResponse{}
	if !resp.IsJSON() {
		out.Message = resp.Text
		return out, nil
	}

	var envelope struct {
		Message string          `json:"message"`
		User    json.RawMessage `json:"user"`
	}
	if err := resp.Decode(&envelope); err != nil {
		// Non-object bodies are accepted as-is.
		return out, nil
	}
	out.Message = envelope.Message

	var user domain.User
	switch {
	case len(envelope.User) > 0 && json.Unmarshal(envelope.User, &user) == nil && user.Validate() == nil:
		out.User = &user
	case resp.Decode(&user) == nil && user.Validate() == nil:
		out.User = &user
	}
	return out, nil
}
