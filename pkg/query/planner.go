package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mwtools/wikiquery/pkg/client"
)

// DefaultBatchSize is the API protocol limit for values per request.
const DefaultBatchSize = 50

// Descriptor is one planned batch: the identifying values of a single request
// plus its fixed parameters.
type Descriptor struct {
	Kind      Kind
	Batch     []string
	Extra     map[string]string
	Generator bool
}

// Params assembles the request parameters for this descriptor.
func (d Descriptor) Params() map[string]string {
	params := make(map[string]string, len(d.Extra)+1)
	for k, v := range d.Extra {
		params[k] = v
	}
	params[d.Kind.paramName()] = strings.Join(d.Batch, "|")
	return params
}

// Canonicalizer supplies already-known canonical forms for requested
// references, so batches are built from canonical values and repeated jobs
// skip work. The boolean is false when the reference is known missing.
type Canonicalizer interface {
	CanonicalTitle(title string) (string, bool)
	CanonicalPageID(id int64) (int64, bool)
}

// PlanOptions configures one planning pass.
type PlanOptions struct {
	// BatchSize caps values per descriptor. Defaults to DefaultBatchSize.
	// Generator-style queries always use 1.
	BatchSize int

	// Generator marks queries whose pagination is per-entity rather than
	// per-batch.
	Generator bool

	// Extra are fixed request parameters copied into every descriptor.
	Extra map[string]string

	// Canon, when set, maps title and page-id references through the known
	// normalization and redirect state before deduplication. Known-missing
	// references are dropped.
	Canon Canonicalizer
}

// Plan partitions a homogeneous reference set into API-legal batches.
// It is a pure partition: no network I/O, no store mutation.
func Plan(refs []Ref, opts PlanOptions) ([]Descriptor, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: empty reference set", client.ErrInvalidRequest)
	}

	kind := refs[0].Kind()
	for _, r := range refs[1:] {
		if r.Kind() != kind {
			return nil, fmt.Errorf("%w: mixed reference kinds %s and %s",
				client.ErrInvalidRequest, kind, r.Kind())
		}
	}

	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	if opts.Generator {
		size = 1
	}

	values := canonicalValues(refs, kind, opts.Canon)
	if len(values) == 0 {
		return nil, nil
	}

	descriptors := make([]Descriptor, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		descriptors = append(descriptors, Descriptor{
			Kind:      kind,
			Batch:     values[start:end],
			Extra:     opts.Extra,
			Generator: opts.Generator,
		})
	}
	return descriptors, nil
}

// canonicalValues maps references through the canonicalizer and deduplicates
// them, keeping first-seen order.
func canonicalValues(refs []Ref, kind Kind, canon Canonicalizer) []string {
	seen := make(map[string]bool, len(refs))
	values := make([]string, 0, len(refs))
	for _, r := range refs {
		v := r.Value()
		if canon != nil {
			switch kind {
			case KindTitle:
				t, ok := canon.CanonicalTitle(r.TitleValue())
				if !ok {
					continue
				}
				v = t
			case KindPageID:
				id, ok := canon.CanonicalPageID(r.IDValue())
				if !ok {
					continue
				}
				v = strconv.FormatInt(id, 10)
			}
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return values
}
