package syncbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
)

// Client is a ports.SyncPeer backed by a remote Server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *Client) Pull(ctx context.Context, since time.Time) ([]domain.RemoteTransaction, error) {
	endpoint := c.baseURL + transactionsPath
	if !since.IsZero() {
		endpoint += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build pull request: %w", err)
	}

	var body rawBody
	if err := c.do(req, &body); err != nil {
		return nil, fmt.Errorf("pull transactions: %w", err)
	}

	// Undecodable records come back as bare sync ids so the merge counts
	// them as dropped instead of failing the pull.
	records, rejected := decodeRecords(body.Transactions)
	for _, syncID := range rejected {
		records = append(records, domain.RemoteTransaction{SyncID: syncID})
	}
	return records, nil
}

func (c *Client) Push(ctx context.Context, records []domain.RemoteTransaction) error {
	if len(records) == 0 {
		return nil
	}

	payload, err := json.Marshal(transactionsBody{Transactions: records})
	if err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transactionsPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("push transactions: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("peer returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("peer returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
