package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout = 120 * time.Second // large transaction pages can be slow

	exchangeTokenPath   = "/item/public_token/exchange"
	institutionPath     = "/item/institution"
	accountsPath        = "/accounts/get"
	balancesPath        = "/accounts/balance/get"
	liabilitiesPath     = "/liabilities/get"
	transactionsPath    = "/transactions/get"
	linkTokenPath       = "/link/token/create"
	updateLinkTokenPath = "/link/token/update"
	removeItemPath      = "/item/remove"
)

// TransactionsPageSize is the page size requested from the transactions
// endpoint. The fetcher concatenates pages until total_transactions is reached.
const TransactionsPageSize = 500

// Client handles communication with the bank-data aggregation API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

var _ ClientInterface = (*Client)(nil)

// NewClient creates a new aggregator API client.
func NewClient(baseURL, clientID, secret string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
	}
}

// post sends a JSON request with client credentials injected and decodes the
// response into out. Non-200 responses are surfaced as *APIError when the
// body parses as one.
func (c *Client) post(ctx context.Context, path string, payload map[string]any, out any) error {
	body := map[string]any{
		"client_id": c.clientID,
		"secret":    c.secret,
	}
	for k, v := range payload {
		body[k] = v
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil {
			return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// ExchangeToken exchanges a link-flow public token for a durable access token
// and the item id identifying the institution connection.
func (c *Client) ExchangeToken(ctx context.Context, publicToken string) (*ExchangeTokenResponse, error) {
	var out ExchangeTokenResponse
	err := c.post(ctx, exchangeTokenPath, map[string]any{"public_token": publicToken}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInstitution returns the institution behind an item.
func (c *Client) GetInstitution(ctx context.Context, accessToken string) (*Institution, error) {
	var out struct {
		Institution Institution `json:"institution"`
	}
	err := c.post(ctx, institutionPath, map[string]any{"access_token": accessToken}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Institution, nil
}

// GetAccounts fetches all accounts for an item.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	var out AccountsResponse
	err := c.post(ctx, accountsPath, map[string]any{"access_token": accessToken}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalances fetches real-time balances. minUpdatedTime, when non-nil, asks
// the aggregator for balances no staler than the given instant.
func (c *Client) GetBalances(ctx context.Context, accessToken string, minUpdatedTime *time.Time) (*BalancesResponse, error) {
	payload := map[string]any{"access_token": accessToken}
	if minUpdatedTime != nil {
		payload["options"] = map[string]any{
			"min_last_updated_datetime": minUpdatedTime.Format(time.RFC3339),
		}
	}

	var out BalancesResponse
	if err := c.post(ctx, balancesPath, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLiabilities fetches liability detail (APRs, statement data, limits) for
// all credit accounts of an item.
func (c *Client) GetLiabilities(ctx context.Context, accessToken string) (*LiabilitiesResponse, error) {
	var out LiabilitiesResponse
	err := c.post(ctx, liabilitiesPath, map[string]any{"access_token": accessToken}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactions fetches one page of transactions in [startDate, endDate].
func (c *Client) GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time, count, offset int) (*TransactionsResponse, error) {
	payload := map[string]any{
		"access_token": accessToken,
		"start_date":   startDate.Format("2006-01-02"),
		"end_date":     endDate.Format("2006-01-02"),
		"options": map[string]any{
			"count":  count,
			"offset": offset,
		},
	}

	var out TransactionsResponse
	if err := c.post(ctx, transactionsPath, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateLinkToken creates a token for the aggregator's link flow.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (*LinkTokenResponse, error) {
	var out LinkTokenResponse
	err := c.post(ctx, linkTokenPath, map[string]any{
		"user": map[string]any{"client_user_id": userID},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUpdateLinkToken creates a token for re-authenticating an existing item.
func (c *Client) CreateUpdateLinkToken(ctx context.Context, userID, itemID string) (*LinkTokenResponse, error) {
	var out LinkTokenResponse
	err := c.post(ctx, updateLinkTokenPath, map[string]any{
		"user":    map[string]any{"client_user_id": userID},
		"item_id": itemID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveItem invalidates the access token and disconnects the item.
func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	return c.post(ctx, removeItemPath, map[string]any{"access_token": accessToken}, nil)
}
