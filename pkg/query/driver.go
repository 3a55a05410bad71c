package query

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mwtools/wikiquery/pkg/client"
)

var mwContinuationPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mw_continuation_pages_total",
	Help: "Total continuation pages consumed across all batches",
})

// Driver executes one Descriptor against the API, following the continuation
// token until the remote signals exhaustion.
type Driver struct {
	client *client.Client
	logger zerolog.Logger
}

// NewDriver creates a continuation driver on top of an API client.
func NewDriver(c *client.Client) *Driver {
	return &Driver{
		client: c,
		logger: log.With().Str("component", "mw-driver").Logger(),
	}
}

// Run starts a single-pass page sequence for the descriptor. The sequence is
// lazy: each Next call issues at most one network request. It is not
// restartable; a fresh Run re-executes the network calls.
func (d *Driver) Run(desc Descriptor) *Pages {
	return &Pages{
		driver: d,
		base:   desc.Params(),
	}
}

// Pages iterates over the pages of one continued query, scanner-style:
//
//	pages := driver.Run(desc)
//	for pages.Next(ctx) {
//	    use(pages.Page())
//	}
//	if err := pages.Err(); err != nil { ... }
type Pages struct {
	driver *Driver
	base   map[string]string

	cont    map[string]string
	current *client.ResultPage
	count   int
	done    bool
	err     error
}

// Next fetches the next page. It returns false when the sequence is exhausted
// or a request failed; check Err afterwards.
func (p *Pages) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}

	params := make(map[string]string, len(p.base)+len(p.cont))
	for k, v := range p.base {
		params[k] = v
	}
	for k, v := range p.cont {
		params[k] = v
	}

	page, err := p.driver.client.Query(ctx, params)
	if err != nil {
		p.err = err
		return false
	}

	p.current = page
	p.count++
	mwContinuationPagesTotal.Inc()

	if page.HasContinue() {
		p.cont = page.Continue
	} else {
		p.done = true
	}

	if p.done {
		p.driver.logger.Debug().
			Int("pages", p.count).
			Msg("Continuation exhausted")
	}
	return true
}

// Page returns the page fetched by the last successful Next call.
func (p *Pages) Page() *client.ResultPage {
	return p.current
}

// Err returns the first error encountered, if any.
func (p *Pages) Err() error {
	return p.err
}

// Count returns the number of pages consumed so far.
func (p *Pages) Count() int {
	return p.count
}
