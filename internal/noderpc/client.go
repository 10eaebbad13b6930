// Package noderpc is a minimal JSON-RPC 2.0 client for chain nodes.
package noderpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	json "github.com/goccy/go-json"

	"github.com/rickgao/chainbridge/internal/api"
)

// requestID is sent with every call; calls are never batched.
const requestID = 1

// MethodGasPrice returns the node's current gas price in wei.
const MethodGasPrice = "eth_gasPrice"

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client calls a single node endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a node client. A nil httpClient gets a 30s timeout default.
func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        url,
		httpClient: httpClient,
		logger:     logger,
	}
}

// URL returns the node endpoint.
func (c *Client) URL() string {
	return c.url
}

// Call invokes method and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	op := "rpc " + method
	if params == nil {
		params = []interface{}{}
	}

	payload, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &api.TransportError{Op: op, URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &api.TransportError{Op: op, URL: c.url, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &api.TransportError{
			Op:         op,
			URL:        c.url,
			StatusCode: resp.StatusCode,
			Body:       body,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	var rpcResp Response
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, &api.MalformedResponseError{Op: op, Body: body, Err: err}
	}
	if rpcResp.Error != nil {
		return nil, &api.TransportError{Op: op, URL: c.url, Body: body, Err: rpcResp.Error}
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return nil, &api.MalformedResponseError{Op: op, Body: body, Err: errors.New("missing result")}
	}

	c.logger.Debug("rpc call", "method", method, "url", c.url)

	return rpcResp.Result, nil
}

// GasPrice returns the node's gas price in wei as a plain decimal string.
func (c *Client) GasPrice(ctx context.Context) (string, error) {
	result, err := c.Call(ctx, MethodGasPrice)
	if err != nil {
		return "", err
	}

	var text string
	if err := json.Unmarshal(result, &text); err != nil {
		// Some nodes answer with a bare number.
		text = string(result)
	}

	wei, err := ParseQuantity(text)
	if err != nil {
		return "", &api.MalformedResponseError{Op: "rpc " + MethodGasPrice, Body: result, Err: err}
	}

	return wei.String(), nil
}

// ParseQuantity parses a hex ("0x…") or decimal quantity into a non-negative integer.
func ParseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty quantity")
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if s[2:] == "" {
			return nil, errors.New("empty hex quantity")
		}
		// hexutil rejects leading zeros, which some nodes still send.
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			return new(big.Int), nil
		}
		return hexutil.DecodeBig("0x" + digits)
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative quantity %q", s)
	}
	return v, nil
}
