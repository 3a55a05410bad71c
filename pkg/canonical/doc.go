// Package canonical maintains the mapping between requested page references
// and the canonical entities they actually refer to. Pages get renamed,
// merged, and deleted; the store keeps four logically related, mutually
// consistent map families current:
//
//   - normalization: raw title → normalized title (append-only, a
//     redefinition is rejected as an invariant violation)
//   - redirects: requested canonical form → true canonical entity, for titles
//     and page ids separately; a nil target encodes "entity does not exist"
//   - identifiers: canonical title → numeric page id, -1 for known missing
//   - collected redirects: canonical entity → all known aliases, itself
//     included
//
// All maps grow monotonically for the lifetime of a session and are shared by
// reference across jobs, so overlapping jobs never re-issue work for known
// references. Concurrent jobs mutating one store must be serialized by the
// caller; concurrent readers are safe.
//
// Resolver drives the two mutating operations (Resolve, EnumerateAliases)
// through the query engine and applies results sequentially after each wave.
// SnapshotStore persists all maps jointly in Redis, restoring all or none.
package canonical
