// Package x is the client for the X API v2: publishing posts and the
// OAuth2 refresh-token exchange. Outcomes are classified into the
// domain error taxonomy so callers never branch on raw HTTP codes.
package x

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
)

// ErrUnauthorized signals a rejected access token. The caller maps it to
// an account-scoped AuthExpiredError.
var ErrUnauthorized = errors.New("access token rejected")

// Config holds X API client configuration.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Mock         bool
}

type Client struct {
	httpClient   *http.Client
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	mock         bool
	logger       *slog.Logger
}

// New creates an X API client. With cfg.Mock set, publishes and token
// refreshes are simulated locally.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		mock:         cfg.Mock,
		logger:       logger.With("component", "x_client"),
	}
}

type createPostRequest struct {
	Text  string           `json:"text"`
	Media *createPostMedia `json:"media,omitempty"`
}

type createPostMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type createPostResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type apiError struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// CreatePost publishes text (plus optional media) and returns the
// platform-assigned post id.
func (c *Client) CreatePost(ctx context.Context, accessToken, text string, mediaIDs []string) (string, error) {
	if c.mock {
		postID := "mock_post_" + uuid.NewString()
		c.logger.Info("mock post", "post_id", postID, "chars", len(text))
		return postID, nil
	}

	payload := createPostRequest{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &createPostMedia{MediaIDs: mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.RetryableTransportError{Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	var out createPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Data.ID == "" {
		return "", &domain.PlatformRejectedError{StatusCode: resp.StatusCode, Reason: "response carried no post id"}
	}
	return out.Data.ID, nil
}

// RefreshToken exchanges a refresh token for a fresh token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if c.mock {
		return &domain.TokenPair{
			AccessToken:  "mock_access_" + uuid.NewString(),
			RefreshToken: "mock_refresh_" + uuid.NewString(),
			ExpiresAt:    time.Now().UTC().Add(2 * time.Hour),
		}, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.RetryableTransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Revoked or otherwise unusable refresh token.
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.RetryableTransportError{StatusCode: resp.StatusCode}
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	pair := &domain.TokenPair{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &domain.RetryableTransportError{StatusCode: resp.StatusCode}
	default:
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		reason := apiErr.Detail
		if reason == "" {
			reason = apiErr.Title
		}
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return &domain.PlatformRejectedError{StatusCode: resp.StatusCode, Reason: reason}
	}
}
