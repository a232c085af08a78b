// Package rest is the thin client for the platform's HTTP collaborators:
// wallet balance, player profile, admin privilege, and wallet intents. All
// calls are bearer-token authenticated JSON.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luckroyale/sixking/internal/domains/entities"
)

var ErrTokenExpired = errors.New("bearer token expired")

type Client struct {
	baseUrl    string
	token      string
	httpClient *http.Client
}

func NewClient(baseUrl, token string) *Client {
	return &Client{
		baseUrl:    baseUrl,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Balance fetches the player's available balance in whole currency units.
func (c *Client) Balance(ctx context.Context) (int, error) {
	var out struct {
		Balance int `json:"balance"`
	}
	if err := c.get(ctx, "/wallet/balance", &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// Profile fetches the authenticated player's identity.
func (c *Client) Profile(ctx context.Context) (entities.Player, error) {
	var out entities.Player
	if err := c.get(ctx, "/players/me", &out); err != nil {
		return entities.Player{}, err
	}
	return out, nil
}

// IsPrivileged reports whether the player may force dice values. Queried
// once per session join; failures just mean no privilege.
func (c *Client) IsPrivileged(ctx context.Context, playerId string) bool {
	var out struct {
		Privileged bool `json:"privileged"`
	}
	if err := c.get(ctx, "/admin/privilege?playerId="+playerId, &out); err != nil {
		return false
	}
	return out.Privileged
}

// Submit delivers a wallet intent. Implements settlement.Sink.
func (c *Client) Submit(ctx context.Context, intent entities.WalletIntent) error {
	return c.post(ctx, "/wallet/intents", intent)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.checkToken(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	if err := c.checkToken(); err != nil {
		return err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseUrl+path,
		bytes.NewReader(raw),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// checkToken fails fast on a token the client can already see is expired.
// Signature verification is the server's job.
func (c *Client) checkToken() error {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(c.token, claims)
	if err != nil {
		// Opaque non-JWT tokens pass through; the server decides.
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return ErrTokenExpired
	}
	return nil
}
