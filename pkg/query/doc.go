// Package query implements the batched, concurrent, continuation-following
// query engine for the MediaWiki Action API.
//
// A job moves through four stages:
//
//   - Plan partitions a homogeneous reference set (titles, page ids, or
//     revision ids) into API-legal batches, consulting known canonical forms
//     so overlapping jobs never re-request resolved references.
//   - Driver.Run follows one batch through the API's continuation protocol,
//     yielding each page lazily.
//   - Execute fans all batches of a wave out over a bounded worker pool and
//     associates reduced results positionally.
//   - RunAdaptive wraps execution in a congestion-control loop: batch size
//     halves after a failed wave (floor 1) and grows back toward the ceiling
//     after clean ones. Completed batches are never redone.
//
// Example usage:
//
//	driver := query.NewDriver(apiClient)
//	executor := query.NewExecutor(driver, 10)
//	ctrl := query.NewController(executor, query.DefaultAdaptiveConfig())
//	results, err := query.RunAdaptive(ctx, ctrl, query.Titles("Dog", "Cat"),
//	    query.PlanOptions{Extra: map[string]string{"redirects": ""}},
//	    reduce.ParseResolution)
package query
