package query

import (
	"strconv"
)

// Kind selects which identifying field addresses an entity.
type Kind int

const (
	// KindTitle addresses entities by page title.
	KindTitle Kind = iota

	// KindPageID addresses entities by numeric page identifier.
	KindPageID

	// KindRevisionID addresses entities by numeric revision identifier.
	KindRevisionID
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindTitle:
		return "titles"
	case KindPageID:
		return "pageids"
	case KindRevisionID:
		return "revids"
	default:
		return "unknown"
	}
}

// paramName returns the API request parameter the kind's values are joined
// under. It matches String; the alias keeps call sites readable.
func (k Kind) paramName() string {
	return k.String()
}

// Ref addresses one remote entity by exactly one of title, page id, or
// revision id. A job operates on a homogeneous set of one variant.
type Ref struct {
	kind  Kind
	title string
	id    int64
}

// Title builds a title reference.
func Title(t string) Ref {
	return Ref{kind: KindTitle, title: t}
}

// PageID builds a page-id reference.
func PageID(id int64) Ref {
	return Ref{kind: KindPageID, id: id}
}

// RevisionID builds a revision-id reference.
func RevisionID(id int64) Ref {
	return Ref{kind: KindRevisionID, id: id}
}

// Kind returns the reference kind.
func (r Ref) Kind() Kind {
	return r.kind
}

// Value returns the raw string form sent on the wire.
func (r Ref) Value() string {
	if r.kind == KindTitle {
		return r.title
	}
	return strconv.FormatInt(r.id, 10)
}

// TitleValue returns the title for title references, "" otherwise.
func (r Ref) TitleValue() string {
	return r.title
}

// IDValue returns the numeric id for pageid/revid references, 0 otherwise.
func (r Ref) IDValue() int64 {
	return r.id
}

// Titles builds a homogeneous title reference slice.
func Titles(titles ...string) []Ref {
	refs := make([]Ref, len(titles))
	for i, t := range titles {
		refs[i] = Title(t)
	}
	return refs
}

// PageIDs builds a homogeneous page-id reference slice.
func PageIDs(ids ...int64) []Ref {
	refs := make([]Ref, len(ids))
	for i, id := range ids {
		refs[i] = PageID(id)
	}
	return refs
}

// RevisionIDs builds a homogeneous revision-id reference slice.
func RevisionIDs(ids ...int64) []Ref {
	refs := make([]Ref, len(ids))
	for i, id := range ids {
		refs[i] = RevisionID(id)
	}
	return refs
}
