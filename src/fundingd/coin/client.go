package coin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/communityfund/funding/src/fundingd/ledger"
)

// Client speaks JSON-RPC to a coin wallet daemon (monero-family wallet RPC).
type Client struct {
	url      string
	username string
	password string
	client   *http.Client
}

func NewClient(url, username, password string) *Client {
	return &Client{
		url:      url,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Address is a freshly minted deposit address, with an optional payment id
// for coins that multiplex one address.
type Address struct {
	Address   string `json:"address"`
	PaymentID string `json:"payment_id,omitempty"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("wallet rpc %s: %s (%d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

// CreateAddress mints a fresh deposit address on the wallet.
func (c *Client) CreateAddress(ctx context.Context) (Address, error) {
	var addr Address
	if err := c.call(ctx, "create_address", nil, &addr); err != nil {
		return Address{}, err
	}
	if addr.Address == "" {
		return Address{}, fmt.Errorf("wallet rpc create_address: empty address")
	}
	return addr, nil
}

type listTransfersParams struct {
	Address          string `json:"address"`
	PaymentID        string `json:"payment_id,omitempty"`
	MinConfirmations int    `json:"min_confirmations"`
}

type transfer struct {
	Amount    float64 `json:"amount"`
	TxID      string  `json:"txid"`
	Timestamp int64   `json:"timestamp"`
}

type listTransfersResult struct {
	Transfers []transfer `json:"transfers"`
}

// ListTransfers returns confirmed incoming transfers for the address.
func (c *Client) ListTransfers(ctx context.Context, address, paymentID string, minConfirmations int) ([]ledger.Transaction, error) {
	var res listTransfersResult
	err := c.call(ctx, "get_transfers", listTransfersParams{
		Address:          address,
		PaymentID:        paymentID,
		MinConfirmations: minConfirmations,
	}, &res)
	if err != nil {
		return nil, err
	}

	txs := make([]ledger.Transaction, 0, len(res.Transfers))
	for _, t := range res.Transfers {
		txs = append(txs, ledger.Transaction{
			Amount:    t.Amount,
			TxID:      t.TxID,
			Direction: ledger.In,
			Timestamp: time.Unix(t.Timestamp, 0),
		})
	}
	return txs, nil
}

type sendParams struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

type sendResult struct {
	TxHash string `json:"tx_hash"`
}

// Send broadcasts a transfer and returns the resulting transaction id.
func (c *Client) Send(ctx context.Context, address string, amount float64) (string, error) {
	var res sendResult
	if err := c.call(ctx, "transfer", sendParams{Address: address, Amount: amount}, &res); err != nil {
		return "", err
	}
	if res.TxHash == "" {
		return "", fmt.Errorf("wallet rpc transfer: empty tx hash")
	}
	return res.TxHash, nil
}
