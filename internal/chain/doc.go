// Package chain implements the ChainBridge: reference-asset prices and gas cost
// for one network, resolved from the exchange backend and the chain node.
//
// A Bridge must be initialised once with Init before any accessor is used.
// Nothing is cached: every accessor issues fresh requests, and transport errors
// are returned to the caller without retry at this layer.
//
// Gas price source depends on the network family:
//   - Ethereum-like chains read the backend's gas endpoint (refreshed by the
//     backend about once a minute)
//   - other chains call eth_gasPrice on the node directly
package chain
