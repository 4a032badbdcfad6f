package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// Client is the REST client for the arena backend. All reads are polled
// snapshots; every response carries a Seq so the reconciler can drop stale
// late arrivals.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new arena REST client.
//
// baseURL is the API root, e.g. "https://api.clash.example.com".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// World returns the full polled world snapshot: every character's supply,
// value and price captured at one server sequence.
func (c *Client) World(ctx context.Context) (domain.WorldSnapshot, error) {
	body, err := c.doGet(ctx, "/world")
	if err != nil {
		return domain.WorldSnapshot{}, fmt.Errorf("arena: get world: %w", err)
	}

	var w APIWorld
	if err := json.Unmarshal(body, &w); err != nil {
		return domain.WorldSnapshot{}, fmt.Errorf("arena: decode world: %w", err)
	}

	return w.ToDomain(), nil
}

// Battle returns the current arena state.
func (c *Client) Battle(ctx context.Context) (domain.BattleState, error) {
	body, err := c.doGet(ctx, "/battle")
	if err != nil {
		return domain.BattleState{}, fmt.Errorf("arena: get battle: %w", err)
	}

	var b APIBattle
	if err := json.Unmarshal(body, &b); err != nil {
		return domain.BattleState{}, fmt.Errorf("arena: decode battle: %w", err)
	}

	return b.ToDomain(), nil
}

// User returns one user's record by wallet address.
func (c *Client) User(ctx context.Context, address string) (domain.User, error) {
	path := fmt.Sprintf("/users/%s", url.PathEscape(address))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.User{}, fmt.Errorf("arena: get user %s: %w", address, err)
	}

	var u APIUser
	if err := json.Unmarshal(body, &u); err != nil {
		return domain.User{}, fmt.Errorf("arena: decode user: %w", err)
	}

	return u.ToDomain(), nil
}

// CharacterTrades returns the most recent trades for one character,
// newest first.
func (c *Client) CharacterTrades(ctx context.Context, characterID uint64, limit int) ([]domain.TradeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/characters/%d/trades?%s", characterID, params.Encode())

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("arena: get trades for character %d: %w", characterID, err)
	}

	var msgs []tradeMessage
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, fmt.Errorf("arena: decode trades: %w", err)
	}

	trades := make([]domain.TradeEvent, 0, len(msgs))
	for _, m := range msgs {
		trades = append(trades, domain.TradeEvent{
			Trader:        m.Trader,
			Character:     m.Character,
			IsBuy:         m.IsBuy,
			ShareAmount:   m.ShareAmount,
			EthAmount:     m.EthAmount,
			PrevPrice:     m.PrevPrice,
			NewPrice:      m.NewPrice,
			PrevMarketCap: m.PrevMarketCap,
			NewMarketCap:  m.NewMarketCap,
			Timestamp:     msToTime(m.Timestamp),
		})
	}
	return trades, nil
}

// CharacterHolders returns the current holders of one character's shares.
func (c *Client) CharacterHolders(ctx context.Context, characterID uint64) ([]domain.UserHolding, error) {
	path := fmt.Sprintf("/characters/%d/holders", characterID)

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("arena: get holders for character %d: %w", characterID, err)
	}

	var raw []struct {
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("arena: decode holders: %w", err)
	}

	holders := make([]domain.UserHolding, 0, len(raw))
	for _, h := range raw {
		holders = append(holders, domain.UserHolding{
			Address:   h.Address,
			Character: characterID,
			Balance:   h.Balance,
		})
	}
	return holders, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the arena API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
