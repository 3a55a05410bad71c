// Package reduce provides pure folding functions that merge the paginated
// fragments of one batch into a single structure keyed by the entity's
// identifying field. Reducers never perform network I/O and never mutate the
// canonicalization store; the alias-enumeration reducer returns raw maps the
// caller merges, keeping every reducer side-effect-free and independently
// testable.
package reduce
