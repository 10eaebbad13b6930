// Package api provides the exchange backend REST client.
//
// Blockchain namespace (relative to the backend base URL):
//   - GET {blockchain}/info      network metadata
//   - GET {blockchain}/prices    asset address -> price in the reference asset
//   - GET {blockchain}/gasPrice  gas price in wei, refreshed by the backend about once a minute
//
// Aggregator namespace:
//   - GET /backend/api/v1/version  {"apiVersion": n}
package api
