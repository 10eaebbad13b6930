// Package stream implements the StreamHub: self-healing WebSocket
// subscriptions to the aggregator's market-data channels.
//
// Each subscription owns one socket. It reconnects with exponential backoff
// after transient failures, re-sends its query frame on every reconnect, and
// terminates on protocol-level failures. Inbound frames flow through a fixed
// pipeline (decode, tag filter, transform) and are delivered in order on a
// typed channel. Duplicates after a reconnect are possible and not filtered.
package stream
