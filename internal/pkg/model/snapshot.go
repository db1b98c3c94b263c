package model

import "time"

// WaybackSnapshot is one row from the archive's CDX index. Timestamp
// keeps the archive's native 14-digit form because it is also a path
// segment of the snapshot content URL.
type WaybackSnapshot struct {
	Timestamp  string `json:"timestamp"`
	URL        string `json:"url"`
	MimeType   string `json:"mimeType"`
	StatusCode int    `json:"statusCode"`
	Digest     string `json:"digest"`
}

const cdxTimeLayout = "20060102150405"

// Time parses the 14-digit archive timestamp (UTC).
func (s WaybackSnapshot) Time() (time.Time, error) {
	return time.Parse(cdxTimeLayout, s.Timestamp)
}

// HarvestedResult is one successfully parsed historical catalog state.
type HarvestedResult struct {
	Timestamp time.Time `json:"timestamp"`
	Rates     Catalog   `json:"rates"`
	Hash      string    `json:"hash"`
}
