package portal

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

// BlockStatus is the backend's advisory answer for one username.
type BlockStatus struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// BlocklistService checks usernames against the backend block list. The
// check is advisory: callers treat transport failures as not blocked.
type BlocklistService struct {
	client *Client
}

// Blocklist returns the block-list adapter.
func (c *Client) Blocklist() *BlocklistService {
	return &BlocklistService{client: c}
}

// IsBlocked reports whether the username is on the block list.
func (b *BlocklistService) IsBlocked(ctx context.Context, username string) (BlockStatus, error) {
	query := url.Values{}
	query.Set("username", username)

	var status BlockStatus
	if err := b.client.Do(ctx, "GET", "/blocklist?"+query.Encode(), nil, &status); err != nil {
		return BlockStatus{}, errors.Wrap(err, "[BlocklistService.IsBlocked]")
	}
	return status, nil
}
