package digitalocean

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const perPage = 200

type listMeta struct {
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

// listAll pages through a collection endpoint until meta.total items were
// read or a short page is returned.
func listAll[T any](ctx context.Context, c *Client, endpoint, key string) ([]T, error) {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}

	var all []T
	for page := 1; ; page++ {
		path := fmt.Sprintf("%s%spage=%d&per_page=%d", endpoint, sep, page, perPage)
		raw, err := c.Call(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		var items []T
		if err := unwrap(path, raw, key, &items); err != nil {
			return nil, err
		}
		all = append(all, items...)

		var meta listMeta
		_ = json.Unmarshal(raw, &meta)
		if len(items) < perPage || (meta.Meta.Total > 0 && len(all) >= meta.Meta.Total) {
			return all, nil
		}
	}
}

// ListDroplets returns every droplet on the account. The API has no notion of
// console users, so callers join on droplet ids.
func (c *Client) ListDroplets(ctx context.Context) ([]Droplet, error) {
	return listAll[Droplet](ctx, c, "/droplets", "droplets")
}

func (c *Client) ListDropletsByTag(ctx context.Context, tag string) ([]Droplet, error) {
	return listAll[Droplet](ctx, c, "/droplets?tag_name="+url.QueryEscape(tag), "droplets")
}

func (c *Client) GetDroplet(ctx context.Context, id int64) (*Droplet, error) {
	var d Droplet
	if err := c.get(ctx, fmt.Sprintf("/droplets/%d", id), "droplet", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) CreateDroplet(ctx context.Context, req DropletCreateRequest) (*Droplet, error) {
	var d Droplet
	if err := c.callInto(ctx, http.MethodPost, "/droplets", req, "droplet", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) DeleteDroplet(ctx context.Context, id int64) error {
	_, err := c.Call(ctx, http.MethodDelete, fmt.Sprintf("/droplets/%d", id), nil)
	return err
}

const (
	ActionPowerOn  = "power_on"
	ActionPowerOff = "power_off"
	ActionReboot   = "reboot"
)

// Action statuses.
const (
	ActionInProgress = "in-progress"
	ActionCompleted  = "completed"
	ActionErrored    = "errored"
)

// DropletAction starts a lifecycle action and returns as soon as the provider
// accepts it; completion is not awaited.
func (c *Client) DropletAction(ctx context.Context, id int64, actionType string) (*Action, error) {
	var a Action
	body := map[string]string{"type": actionType}
	if err := c.callInto(ctx, http.MethodPost, fmt.Sprintf("/droplets/%d/actions", id), body, "action", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAction reports the progress of a previously started action.
func (c *Client) GetAction(ctx context.Context, id int64) (*Action, error) {
	var a Action
	if err := c.get(ctx, fmt.Sprintf("/actions/%d", id), "action", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) PowerOn(ctx context.Context, id int64) (*Action, error) {
	return c.DropletAction(ctx, id, ActionPowerOn)
}

func (c *Client) PowerOff(ctx context.Context, id int64) (*Action, error) {
	return c.DropletAction(ctx, id, ActionPowerOff)
}

func (c *Client) Reboot(ctx context.Context, id int64) (*Action, error) {
	return c.DropletAction(ctx, id, ActionReboot)
}
