// Package model defines shared data types used across the chain bridge.
//
// Conventions:
//   - Prices and sizes: shopspring decimal.Decimal, never float64
//   - Gas prices: decimal strings denominated in wei
//   - Addresses: hex strings as returned by the backend
//   - Timestamps: int64 milliseconds since Unix epoch (backend convention)
package model
