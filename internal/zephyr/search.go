package zephyr

import (
	"net/url"
	"strconv"
)

// Search defaults applied when a caller leaves pagination unset.
const (
	DefaultStartAt    = 0
	DefaultMaxResults = 200
)

// SearchOptions filter and paginate a search. Query is TQL and is passed
// through unparsed.
type SearchOptions struct {
	Query      string
	Fields     string
	StartAt    int
	MaxResults int
}

func (o SearchOptions) values() url.Values {
	v := url.Values{}
	if o.Query != "" {
		v.Set("query", o.Query)
	}
	if o.Fields != "" {
		v.Set("fields", o.Fields)
	}
	startAt := o.StartAt
	if startAt < 0 {
		startAt = DefaultStartAt
	}
	maxResults := o.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	v.Set("startAt", strconv.Itoa(startAt))
	v.Set("maxResults", strconv.Itoa(maxResults))
	return v
}

func withFields(path, fields string) string {
	if fields == "" {
		return path
	}
	return path + "?" + url.Values{"fields": {fields}}.Encode()
}
