package client

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Rename is one from→to pair reported by the API for title normalization or
// redirect resolution.
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PageLink is one entry of a list-valued page property (links, linkshere,
// redirects). PageID is only present for some properties.
type PageLink struct {
	NS     int    `json:"ns"`
	Title  string `json:"title"`
	PageID int64  `json:"pageid"`
}

// LangLink is one language-link entry.
type LangLink struct {
	Lang  string `json:"lang"`
	Title string `json:"title"`
}

// ExtLink is one external-link entry.
type ExtLink struct {
	URL string `json:"url"`
}

// IWLink is one interwiki-link entry.
type IWLink struct {
	Prefix string `json:"prefix"`
	Title  string `json:"title"`
}

// Slot holds the content of one revision slot.
type Slot struct {
	ContentModel string `json:"contentmodel"`
	Content      string `json:"content"`
}

// Revision is one revision record of a page.
type Revision struct {
	RevID     int64           `json:"revid"`
	ParentID  int64           `json:"parentid"`
	Timestamp string          `json:"timestamp"`
	User      string          `json:"user"`
	Size      int64           `json:"size"`
	Comment   string          `json:"comment"`
	Slots     map[string]Slot `json:"slots"`
}

// Page is one page record inside a query result (formatversion=2).
type Page struct {
	PageID    int64      `json:"pageid"`
	NS        int        `json:"ns"`
	Title     string     `json:"title"`
	Missing   bool       `json:"missing"`
	Links     []PageLink `json:"links"`
	LinksHere []PageLink `json:"linkshere"`
	LangLinks []LangLink `json:"langlinks"`
	ExtLinks  []ExtLink  `json:"extlinks"`
	IWLinks   []IWLink   `json:"iwlinks"`
	Redirects []PageLink `json:"redirects"`
	Revisions []Revision `json:"revisions"`
}

// QueryResult is the query section of a response envelope.
type QueryResult struct {
	Normalized []Rename `json:"normalized"`
	Redirects  []Rename `json:"redirects"`
	Pages      []Page   `json:"pages"`
}

// ResultPage is one decoded response of a (possibly continued) query.
// Empty marks an envelope that carried no usable query section; this is a
// soft condition, not an error.
type ResultPage struct {
	Query    *QueryResult
	Continue map[string]string
	Empty    bool
}

// HasContinue reports whether the remote signalled more pages.
func (p *ResultPage) HasContinue() bool {
	return len(p.Continue) > 0
}

// envelope is the raw response shape shared by all query actions.
type envelope struct {
	Error         *RemoteError               `json:"error"`
	Warnings      json.RawMessage            `json:"warnings"`
	BatchComplete bool                       `json:"batchcomplete"`
	Continue      map[string]json.RawMessage `json:"continue"`
	Query         *QueryResult               `json:"query"`
}

// continueParams flattens the continuation token into request parameters.
// Token values may be JSON strings or numbers; both become plain strings.
func (e *envelope) continueParams() (map[string]string, error) {
	if len(e.Continue) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(e.Continue))
	for k, raw := range e.Continue {
		if len(raw) > 0 && raw[0] == '"' {
			s, err := strconv.Unquote(string(raw))
			if err != nil {
				return nil, fmt.Errorf("decode continuation value %s: %w", k, err)
			}
			out[k] = s
		} else {
			out[k] = string(raw)
		}
	}
	return out, nil
}
