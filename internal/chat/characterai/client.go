// Package characterai implements the chat session backend for Character.AI.
// Account and character lookups use the REST API; conversations run over a
// websocket connection.
package characterai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alienxp03/rpgen/internal/chat"
)

const (
	DefaultAPIURL  = "https://plus.character.ai"
	DefaultWSURL   = "wss://neo.character.ai"
	DefaultTimeout = 2 * time.Minute

	// DefaultGreetingWait bounds the wait for a greeting after the chat
	// has been created.
	DefaultGreetingWait = 3 * time.Second

	maxErrorBody = 512
)

// Config configures a Client.
type Config struct {
	Token  string
	APIURL string
	WSURL  string

	// Timeout bounds each REST call and each wait for a websocket reply.
	Timeout time.Duration

	// GreetingWait bounds the wait for an optional greeting once a chat
	// is created.
	GreetingWait time.Duration

	HTTPClient *http.Client

	// Cache stores account and character lookups between runs. Optional.
	Cache Cache
}

// Cache is a small persistent key/value store for profile lookups.
type Cache interface {
	Get(key string, v any) (bool, error)
	Put(key string, v any) error
}

// Account identifies the authenticated user.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Character is the public profile of a character.
type Character struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Greeting string `json:"greeting"`
}

// Client talks to Character.AI.
type Client struct {
	cfg        Config
	httpClient *http.Client
	dialer     *websocket.Dialer

	mu      sync.Mutex
	account *Account
}

var _ chat.Service = (*Client)(nil)

// New creates a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("character.ai token is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.WSURL = strings.TrimRight(cfg.WSURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.GreetingWait <= 0 {
		cfg.GreetingWait = DefaultGreetingWait
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 30 * time.Second,
		},
	}, nil
}

// Name returns the backend identifier.
func (c *Client) Name() string {
	return "characterai"
}

// Account returns the authenticated account, fetching it once.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.account != nil {
		return c.account, nil
	}

	key := "account:" + tokenKey(c.cfg.Token)
	if c.cfg.Cache != nil {
		var cached Account
		if ok, err := c.cfg.Cache.Get(key, &cached); err != nil {
			slog.Debug("Profile cache read failed", "key", key, "error", err)
		} else if ok && cached.ID != "" {
			c.account = &cached
			return c.account, nil
		}
	}

	var body accountResponse
	if err := c.doJSON(ctx, http.MethodGet, "/chat/user/", nil, &body); err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	if body.User.User.ID.String() == "" {
		return nil, errors.New("fetch account: response has no user id")
	}

	acct := &Account{
		ID:       body.User.User.ID.String(),
		Username: body.User.User.Username,
		Name:     body.User.Name,
	}
	if c.cfg.Cache != nil {
		if err := c.cfg.Cache.Put(key, acct); err != nil {
			slog.Debug("Profile cache write failed", "key", key, "error", err)
		}
	}
	c.account = acct
	return acct, nil
}

// Character fetches the public profile of a character.
func (c *Client) Character(ctx context.Context, characterID string) (*Character, error) {
	key := "character:" + characterID
	if c.cfg.Cache != nil {
		var cached Character
		if ok, err := c.cfg.Cache.Get(key, &cached); err == nil && ok && cached.Name != "" {
			return &cached, nil
		}
	}

	var body characterResponse
	req := map[string]string{"external_id": characterID}
	if err := c.doJSON(ctx, http.MethodPost, "/chat/character/info/", req, &body); err != nil {
		return nil, fmt.Errorf("fetch character %s: %w", characterID, err)
	}
	if body.Status != "" && body.Status != "OK" {
		return nil, &APIError{Command: "character info", Comment: body.Status}
	}

	ch := &Character{
		ID:       characterID,
		Name:     body.Character.Name,
		Title:    body.Character.Title,
		Greeting: body.Character.Greeting,
	}
	if c.cfg.Cache != nil {
		if err := c.cfg.Cache.Put(key, ch); err != nil {
			slog.Debug("Profile cache write failed", "key", key, "error", err)
		}
	}
	return ch, nil
}

// Open connects the websocket and creates a new chat with the character.
func (c *Client) Open(ctx context.Context, characterID string) (chat.Session, error) {
	acct, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Cookie", fmt.Sprintf("HTTP_AUTHORIZATION=\"Token %s\"", c.cfg.Token))

	url := c.cfg.WSURL + "/ws/"
	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}

	s := newSession(conn, *acct, characterID, c.cfg.Timeout, c.cfg.GreetingWait)
	if err := s.createChat(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create chat: %w", err)
	}

	slog.Debug("Chat opened", "character_id", characterID, "chat_id", s.chatID)
	return s, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := c.cfg.APIURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %w", chat.ErrTransient, method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", chat.ErrTransient, httpErr)
		}
		return httpErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
