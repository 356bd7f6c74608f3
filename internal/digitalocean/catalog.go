package digitalocean

import (
	"context"
	"net/url"
)

func (c *Client) ListRegions(ctx context.Context) ([]Region, error) {
	return listAll[Region](ctx, c, "/regions", "regions")
}

func (c *Client) ListSizes(ctx context.Context) ([]Size, error) {
	return listAll[Size](ctx, c, "/sizes", "sizes")
}

// ListImages lists images of the given type ("distribution", "application");
// an empty type lists everything visible to the account.
func (c *Client) ListImages(ctx context.Context, imageType string) ([]Image, error) {
	endpoint := "/images"
	if imageType != "" {
		endpoint += "?type=" + url.QueryEscape(imageType)
	}
	return listAll[Image](ctx, c, endpoint, "images")
}

func (c *Client) GetAccount(ctx context.Context, opts ...CallOption) (*Account, error) {
	var a Account
	if err := c.get(ctx, "/account", "account", &a, opts...); err != nil {
		return nil, err
	}
	return &a, nil
}
