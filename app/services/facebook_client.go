package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/audience-orchestrator/config"
)

// PageSubscribedFields are the webhook fields a page is subscribed to when it joins a campaign
var PageSubscribedFields = []string{
	"feed",
	"messages",
	"message_deliveries",
	"messaging_postbacks",
	"messaging_optins",
	"message_reads",
}

// AdAccountStatusActive is the Graph account_status of a usable ad account
const AdAccountStatusActive = 1

// FacebookClient is the subset of the Graph API the orchestrator depends on
type FacebookClient interface {
	ReachEstimate(ctx context.Context, adAccountID, accessToken string, spec map[string]any) (*ReachEstimate, error)
	ExchangeToken(ctx context.Context, shortLivedToken string) (string, error)
	DebugToken(ctx context.Context, token string) (*TokenDebug, error)
	SubscribeApp(ctx context.Context, pageID, pageToken string) error
	UnsubscribeApp(ctx context.Context, pageID, pageToken string) error
	AdAccountStatus(ctx context.Context, adAccountID, accessToken string) (*AdAccountStatus, error)
	UserPages(ctx context.Context, userToken string) ([]*Page, error)
}

// ReachEstimate is one answer of the reach estimate endpoint.
// Raw keeps the full response body for the estimate cache.
type ReachEstimate struct {
	Ready bool
	Users int64
	Raw   json.RawMessage
}

type reachEstimateResponse struct {
	Data struct {
		Users         int64 `json:"users"`
		EstimateReady bool  `json:"estimate_ready"`
	} `json:"data"`
}

// ParseReachEstimate decodes a reach estimate body, as returned by the API or stored in the cache
func ParseReachEstimate(raw []byte) (*ReachEstimate, error) {
	var resp reachEstimateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode reach estimate: %w", err)
	}
	return &ReachEstimate{
		Ready: resp.Data.EstimateReady,
		Users: resp.Data.Users,
		Raw:   json.RawMessage(raw),
	}, nil
}

// TokenDebug is the introspection result of an access token
type TokenDebug struct {
	IsValid   bool     `json:"is_valid"`
	AppID     string   `json:"app_id"`
	UserID    string   `json:"user_id"`
	ExpiresAt int64    `json:"expires_at"`
	Scopes    []string `json:"scopes"`
}

// AdAccountStatus is the status of an ad account
type AdAccountStatus struct {
	ID            string `json:"id"`
	AccountStatus int    `json:"account_status"`
	DisableReason int    `json:"disable_reason"`
}

// Active reports whether the ad account can be used
func (s *AdAccountStatus) Active() bool {
	return s.AccountStatus == AdAccountStatusActive
}

// Page is a page managed by a user, with the page token granted to that user
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	FanCount    int64  `json:"fan_count"`
	AccessToken string `json:"access_token"`
}

// FacebookAPIError is an error payload returned by the Graph API
type FacebookAPIError struct {
	StatusCode int
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *FacebookAPIError) Error() string {
	return fmt.Sprintf("graph api error %d (%s, http %d): %s", e.Code, e.Type, e.StatusCode, e.Message)
}

// IsPermissionError reports whether the caller lacks permission on the object
func (e *FacebookAPIError) IsPermissionError() bool {
	return e.Code == 10 || (e.Code >= 200 && e.Code < 300)
}

// IsTokenError reports whether the access token is expired or invalid
func (e *FacebookAPIError) IsTokenError() bool {
	return e.Code == 190 || e.Code == 102
}

// AsFacebookAPIError unwraps a *FacebookAPIError from err
func AsFacebookAPIError(err error) (*FacebookAPIError, bool) {
	var apiErr *FacebookAPIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// FacebookClientImpl implements FacebookClient over the Graph HTTP API
type FacebookClientImpl struct {
	base       *GraphBaseClient
	graphURL   string
	apiVersion string
	appID      string
	appSecret  string
}

// NewFacebookClient creates a Graph API client from configuration
func NewFacebookClient(cfg config.FacebookConfig, opts ...GraphBaseClientOption) FacebookClient {
	policy := DefaultRetryPolicy()
	if cfg.MaxRetries >= 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	opts = append([]GraphBaseClientOption{WithRateLimit(cfg.RateLimit, cfg.RateBurst)}, opts...)

	return &FacebookClientImpl{
		base:       NewGraphBaseClient(&http.Client{Timeout: cfg.Timeout}, "facebook-graph", policy, opts...),
		graphURL:   strings.TrimRight(cfg.GraphURL, "/"),
		apiVersion: cfg.APIVersion,
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
	}
}

// ReachEstimate asks for the audience size of a targeting spec
func (c *FacebookClientImpl) ReachEstimate(ctx context.Context, adAccountID, accessToken string, spec map[string]any) (*ReachEstimate, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode targeting spec: %w", err)
	}

	params := url.Values{}
	params.Set("targeting_spec", string(specJSON))
	c.authenticate(params, accessToken)

	body, err := c.call(ctx, http.MethodGet, adAccountID+"/reachestimate", params)
	if err != nil {
		return nil, err
	}
	return ParseReachEstimate(body)
}

// ExchangeToken trades a short-lived token for a long-lived one
func (c *FacebookClientImpl) ExchangeToken(ctx context.Context, shortLivedToken string) (string, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", c.appID)
	params.Set("client_secret", c.appSecret)
	params.Set("fb_exchange_token", shortLivedToken)

	body, err := c.call(ctx, http.MethodGet, "oauth/access_token", params)
	if err != nil {
		return "", err
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode token exchange: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("token exchange returned no access token")
	}
	return resp.AccessToken, nil
}

// DebugToken introspects a token with the app credentials
func (c *FacebookClientImpl) DebugToken(ctx context.Context, token string) (*TokenDebug, error) {
	params := url.Values{}
	params.Set("input_token", token)
	params.Set("access_token", c.appID+"|"+c.appSecret)

	body, err := c.call(ctx, http.MethodGet, "debug_token", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data TokenDebug `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode token debug: %w", err)
	}
	return &resp.Data, nil
}

// SubscribeApp subscribes the app to the page webhooks
func (c *FacebookClientImpl) SubscribeApp(ctx context.Context, pageID, pageToken string) error {
	params := url.Values{}
	params.Set("subscribed_fields", strings.Join(PageSubscribedFields, ","))
	c.authenticate(params, pageToken)

	body, err := c.call(ctx, http.MethodPost, pageID+"/subscribed_apps", params)
	if err != nil {
		return err
	}
	return expectSuccess(body, "subscribe app")
}

// UnsubscribeApp removes the app subscription of a page
func (c *FacebookClientImpl) UnsubscribeApp(ctx context.Context, pageID, pageToken string) error {
	params := url.Values{}
	c.authenticate(params, pageToken)

	body, err := c.call(ctx, http.MethodDelete, pageID+"/subscribed_apps", params)
	if err != nil {
		return err
	}
	return expectSuccess(body, "unsubscribe app")
}

// AdAccountStatus reads the status of an ad account
func (c *FacebookClientImpl) AdAccountStatus(ctx context.Context, adAccountID, accessToken string) (*AdAccountStatus, error) {
	params := url.Values{}
	params.Set("fields", "account_status,disable_reason")
	c.authenticate(params, accessToken)

	body, err := c.call(ctx, http.MethodGet, adAccountID, params)
	if err != nil {
		return nil, err
	}

	var status AdAccountStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode ad account status: %w", err)
	}
	return &status, nil
}

// UserPages lists the pages a user manages
func (c *FacebookClientImpl) UserPages(ctx context.Context, userToken string) ([]*Page, error) {
	params := url.Values{}
	params.Set("fields", "id,name,category,fan_count,access_token")
	params.Set("limit", "100")
	c.authenticate(params, userToken)

	body, err := c.call(ctx, http.MethodGet, "me/accounts", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []*Page `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode user pages: %w", err)
	}
	return resp.Data, nil
}

// authenticate adds the access token and its appsecret_proof
func (c *FacebookClientImpl) authenticate(params url.Values, accessToken string) {
	params.Set("access_token", accessToken)
	if c.appSecret != "" {
		mac := hmac.New(sha256.New, []byte(c.appSecret))
		mac.Write([]byte(accessToken))
		params.Set("appsecret_proof", hex.EncodeToString(mac.Sum(nil)))
	}
}

func (c *FacebookClientImpl) endpoint(path string) string {
	if c.apiVersion == "" {
		return c.graphURL + "/" + path
	}
	return c.graphURL + "/" + c.apiVersion + "/" + path
}

// call performs a Graph request and returns the body of a 2xx answer.
// Graph error payloads become *FacebookAPIError.
func (c *FacebookClientImpl) call(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	target := c.endpoint(path)

	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build graph request: %w", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &FacebookAPIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *FacebookAPIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			apiErr = envelope.Error
			apiErr.StatusCode = resp.StatusCode
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}
	return body, nil
}

func expectSuccess(body []byte, action string) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	if !resp.Success {
		return fmt.Errorf("%s was not acknowledged", action)
	}
	return nil
}

// TokenValidator decides whether a stored account token can still be used
type TokenValidator interface {
	Validate(ctx context.Context, token string) (bool, error)
}

// GraphTokenValidator validates tokens with the debug_token endpoint
type GraphTokenValidator struct {
	client FacebookClient
	now    func() time.Time
}

func NewGraphTokenValidator(client FacebookClient) *GraphTokenValidator {
	return &GraphTokenValidator{client: client, now: time.Now}
}

// Validate reports whether the token is valid and not expired.
// Upstream failures are returned as errors, never as an invalid token.
func (v *GraphTokenValidator) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	debug, err := v.client.DebugToken(ctx, token)
	if err != nil {
		return false, err
	}
	if !debug.IsValid {
		return false, nil
	}
	if debug.ExpiresAt > 0 && !time.Unix(debug.ExpiresAt, 0).After(v.now()) {
		return false, nil
	}
	return true, nil
}
