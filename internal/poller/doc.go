// Package poller implements the fee-input sampler.
//
// The sampler:
//   - Asks the chain bridge for fee inputs on a fixed interval
//   - Takes one sample per configured base asset, all paying fees in one asset
//   - Bounds concurrent samples per cycle
//   - Hands each sample to a handler (typically the recorder)
package poller
