// Package chain implements the remote ledger node boundary used by the sync
// engine: tip height discovery and block retrieval over the node's HTTP API.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/veilbridge/ledger-infrastructure/indexer"
)

type ClientConfig struct {
	// URL is the base address of the node HTTP API
	URL string `json:"url"`

	RequestTimeout time.Duration `json:"requestTimeout"`
}

// HTTPClient fetches blocks over the node's JSON API. Callers bound each
// request through the context; RequestTimeout is a safety net below that.
type HTTPClient struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     hclog.Logger
}

var _ indexer.ChainClient = (*HTTPClient)(nil)

func NewHTTPClient(config *ClientConfig, logger hclog.Logger) *HTTPClient {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}

	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// GetTipHeight implements indexer.ChainClient.
func (hc *HTTPClient) GetTipHeight(ctx context.Context) (uint64, error) {
	body, err := hc.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}

	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tip height response: %w", err)
	}

	return height, nil
}

// GetBlock implements indexer.ChainClient.
func (hc *HTTPClient) GetBlock(ctx context.Context, height uint64) (*indexer.Block, error) {
	body, err := hc.get(ctx, fmt.Sprintf("/blocks/%d", height))
	if err != nil {
		return nil, err
	}

	var block *indexer.Block

	if err := json.Unmarshal(body, &block); err != nil {
		return nil, fmt.Errorf("invalid block response: %w", err)
	}

	return block, nil
}

func (hc *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	url := strings.TrimSuffix(hc.config.URL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := hc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, indexer.ErrBlockNotAvailable
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request to %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	return body, nil
}
