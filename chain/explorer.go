package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrRateLimited signals that the explorer is throttling us. Callers should
// abort the whole batch rather than retry item by item.
var ErrRateLimited = errors.New("explorer rate limited")

// explorerPageSize is the upstream page cap for one txlist request.
const explorerPageSize = 100

// ExplorerClient reads an account's recent transaction history from an
// etherscan-family block explorer API.
type ExplorerClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewExplorerClient constructs an explorer client with sane defaults.
func NewExplorerClient(baseURL, apiKey string) *ExplorerClient {
	return &ExplorerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type explorerTx struct {
	BlockNumber   string `json:"blockNumber"`
	TimeStamp     string `json:"timeStamp"`
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	IsError       string `json:"isError"`
	Confirmations string `json:"confirmations"`
}

// ListRecentTransactions returns the newest transactions sent to recipient,
// newest first, bounded by the upstream page size. An explicit "no
// transactions found" reply yields an empty slice, not an error.
func (c *ExplorerClient) ListRecentTransactions(ctx context.Context, recipient common.Address) ([]Transaction, error) {
	if c == nil {
		return nil, fmt.Errorf("explorer client not configured")
	}
	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", "txlist")
	query.Set("address", strings.ToLower(recipient.Hex()))
	query.Set("startblock", "0")
	query.Set("endblock", "99999999")
	query.Set("page", "1")
	query.Set("offset", strconv.Itoa(explorerPageSize))
	query.Set("sort", "desc")
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer txlist failed: status=%d", resp.StatusCode)
	}
	var payload explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}
	if payload.Status != "1" {
		switch {
		case strings.Contains(payload.Message, "No transactions found"):
			return nil, nil
		case strings.Contains(strings.ToLower(payload.Message), "rate limit"):
			return nil, ErrRateLimited
		default:
			return nil, fmt.Errorf("explorer error: %s", payload.Message)
		}
	}
	var raw []explorerTx
	if err := json.Unmarshal(payload.Result, &raw); err != nil {
		return nil, fmt.Errorf("decode explorer result: %w", err)
	}
	txs := make([]Transaction, 0, len(raw))
	for _, entry := range raw {
		tx, err := entry.parse()
		if err != nil {
			return nil, fmt.Errorf("parse explorer transaction %s: %w", entry.Hash, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (e explorerTx) parse() (Transaction, error) {
	block, err := strconv.ParseUint(e.BlockNumber, 10, 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("block number %q: %w", e.BlockNumber, err)
	}
	ts, err := strconv.ParseInt(e.TimeStamp, 10, 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("timestamp %q: %w", e.TimeStamp, err)
	}
	value, ok := new(big.Int).SetString(e.Value, 10)
	if !ok {
		return Transaction{}, fmt.Errorf("value %q not an integer", e.Value)
	}
	confirmations, err := strconv.ParseUint(e.Confirmations, 10, 64)
	if err != nil {
		confirmations = 0
	}
	tx := Transaction{
		Hash:          common.HexToHash(e.Hash),
		BlockNumber:   block,
		Time:          time.Unix(ts, 0).UTC(),
		From:          common.HexToAddress(e.From),
		Value:         value,
		Failed:        e.IsError == "1",
		Confirmations: confirmations,
	}
	if strings.TrimSpace(e.To) != "" {
		to := common.HexToAddress(e.To)
		tx.To = &to
	}
	return tx, nil
}
