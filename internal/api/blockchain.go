package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/rickgao/chainbridge/internal/model"
)

// VersionPath is the aggregator endpoint reporting the protocol version.
const VersionPath = "/backend/api/v1/version"

// GetBlockchainInfo fetches network metadata.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*model.BlockchainInfo, error) {
	path := c.blockchainPath + "/info"

	var info model.BlockchainInfo
	if err := c.get(ctx, path, nil, &info); err != nil {
		return nil, fmt.Errorf("get blockchain info: %w", err)
	}

	if info.AssetToAddress == nil {
		return nil, &MalformedResponseError{Op: "GET " + path, Err: errors.New("missing assetToAddress")}
	}

	return &info, nil
}

// GetPrices fetches the raw price table keyed by asset address.
func (c *Client) GetPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	path := c.blockchainPath + "/prices"

	var prices map[string]decimal.Decimal
	if err := c.get(ctx, path, nil, &prices); err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	if prices == nil {
		return nil, &MalformedResponseError{Op: "GET " + path, Err: errors.New("empty price table")}
	}

	return prices, nil
}

// GetGasPrice fetches the backend's gas price in wei as a decimal string.
func (c *Client) GetGasPrice(ctx context.Context) (string, error) {
	path := c.blockchainPath + "/gasPrice"

	body, err := c.getRaw(ctx, path)
	if err != nil {
		return "", fmt.Errorf("get gas price: %w", err)
	}

	gas, err := parseGasBody(body)
	if err != nil {
		return "", &MalformedResponseError{Op: "GET " + path, Body: body, Err: err}
	}

	return gas, nil
}

// parseGasBody accepts a JSON string or a bare JSON number.
func parseGasBody(body []byte) (string, error) {
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		return "", errors.New("empty body")
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", err
		}
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return "", err
	}
	if d.IsNegative() {
		return "", fmt.Errorf("negative gas price %s", text)
	}

	return d.String(), nil
}

// GetVersion fetches the aggregator protocol version.
func (c *Client) GetVersion(ctx context.Context) (int, error) {
	var resp VersionResponse
	if err := c.get(ctx, VersionPath, nil, &resp); err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}

	if resp.APIVersion == nil {
		return 0, &MalformedResponseError{Op: "GET " + VersionPath, Err: errors.New("missing apiVersion")}
	}

	// Integral floats such as 2.0 are valid versions.
	v, err := resp.APIVersion.Float64()
	if err != nil {
		return 0, &MalformedResponseError{Op: "GET " + VersionPath, Err: err}
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, &MalformedResponseError{Op: "GET " + VersionPath, Err: fmt.Errorf("apiVersion %s is not an integer", resp.APIVersion)}
	}

	return int(v), nil
}
