// Package batch coalesces individually requested keys into bounded batch
// fetches.
//
// The coordinator implements trailing-edge batching with the following features:
//
// - Debounced flush: every Request restarts the quiet period
// - Chunking by MaxBatchSize, chunks dispatched concurrently
// - Per-key demultiplexing of batch responses through a KeyFunc
// - Keys no response mentions are rejected with a 404 not-found error
// - A failed chunk rejects every key of that chunk with the same error
// - Prometheus metrics and zerolog logging per coordinator name
//
// # Basic Usage
//
//	fetch := func(ctx context.Context, keys []string, extra ...any) (batch.Response[User], error) {
//		users, err := api.GetUsers(ctx, keys)
//		if err != nil {
//			return batch.Response[User]{}, err
//		}
//		return batch.Items(users...), nil
//	}
//
//	users := batch.New(func(u User) string { return u.Username }, fetch, batch.DefaultConfig())
//	defer users.Close()
//
//	// Concurrent callers share one upstream call
//	homer, err := users.Load(ctx, "homer")
//	if errors.Is(err, batch.ErrNotFound) {
//		// homer was not in the batch response
//	}
//
// # Futures
//
// Request returns a *Future without blocking; Wait blocks until it settles or
// the context is done. A context ending does not cancel the batch.
//
//	f := users.Request("marge")
//	select {
//	case <-f.Done():
//		marge, err := f.Wait(ctx)
//	case <-time.After(time.Second):
//	}
//
// # Duplicate Keys
//
// Requesting a key that is already pending replaces the earlier registration.
// The earlier future is never settled; fetch_batch_orphaned_total counts these.
//
// # Single Items
//
// A fetch function may answer with batch.One(item) when the upstream returns a
// bare object instead of a list. Both shapes are demultiplexed the same way.
package batch
