package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"schoolportal/internal/model"
)

// Login exchanges credentials for a token pair. The endpoint is form-encoded.
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var pair TokenPair
	if err := c.postForm(ctx, "/auth/login", form, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Me fetches the extended profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (model.Profile, error) {
	var p model.Profile
	if err := c.getJSON(ctx, "/auth/me", &p); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

// UpdateMe updates the authenticated user's profile.
func (c *Client) UpdateMe(ctx context.Context, p model.Profile) (model.Profile, error) {
	var out model.Profile
	if err := c.putJSON(ctx, "/auth/me", p, &out); err != nil {
		return model.Profile{}, err
	}
	return out, nil
}

// PasskeyLoginOptions obtains the WebAuthn assertion options for a user. The
// browser performs the authenticator ceremony; the portal only relays JSON.
func (c *Client) PasskeyLoginOptions(ctx context.Context, identifier string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"username": identifier})
	if err != nil {
		return nil, err
	}
	data, err := c.do(ctx, http.MethodPost, "/auth/webauthn/login/generate", "application/json", body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// PasskeyLoginVerify submits the browser's assertion and, on success, returns
// the same token pair contract as Login.
func (c *Client) PasskeyLoginVerify(ctx context.Context, assertion json.RawMessage) (TokenPair, error) {
	data, err := c.do(ctx, http.MethodPost, "/auth/webauthn/login/verify", "application/json", assertion)
	if err != nil {
		return TokenPair{}, err
	}
	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("decode token pair: %w", err)
	}
	return pair, nil
}

// PasskeyRegisterOptions obtains WebAuthn registration options for the
// authenticated user.
func (c *Client) PasskeyRegisterOptions(ctx context.Context) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodPost, "/auth/webauthn/register/generate", "application/json", nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// PasskeyRegisterVerify completes passkey registration with the browser's
// attestation response.
func (c *Client) PasskeyRegisterVerify(ctx context.Context, attestation json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/webauthn/register/verify", "application/json", attestation)
	return err
}
