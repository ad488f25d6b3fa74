// Package batch fans cache fetches and inserts out over a bounded worker
// pool.
//
// Example usage:
//
//	runner := batch.NewRunner(store, batch.DefaultConfig())
//	results := runner.FetchAll(ctx, requests)
//	summary := runner.InsertAll(ctx, points)
//
// The runner:
//   - Distributes items across MaxConcurrency workers (default 10)
//   - Bounds each item by Timeout
//   - Returns fetch results in input order
//   - Counts invalid points as rejected without stopping the batch
//
// Backend failures are absorbed by the cache itself, so a batch never fails
// as a whole.
package batch
