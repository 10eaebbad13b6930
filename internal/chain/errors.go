package chain

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrNotInitialized     = errors.New("chain bridge not initialized")
	ErrAlreadyInitialized = errors.New("chain bridge already initialized")
)

// UnknownAssetError reports a symbol or address the token registry cannot resolve.
type UnknownAssetError struct {
	Asset string
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("unknown asset %q", e.Asset)
}
