package portal

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

// Grade is one course result row.
type Grade struct {
	Course  string  `json:"course"`
	Term    string  `json:"term"`
	Credits int     `json:"credits"`
	Score   float64 `json:"score"`
}

// Grades fetches the authenticated student's results, optionally filtered
// by term. A representative governed read path: admission, signature, and
// deadline all apply.
func (c *Client) Grades(ctx context.Context, term string) ([]Grade, error) {
	path := "/grades"
	if term != "" {
		query := url.Values{}
		query.Set("term", term)
		path += "?" + query.Encode()
	}

	var grades []Grade
	if err := c.Do(ctx, "GET", path, nil, &grades); err != nil {
		return nil, errors.Wrap(err, "[Grades]")
	}
	return grades, nil
}
