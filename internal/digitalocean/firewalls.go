package digitalocean

import (
	"context"
	"net/http"
)

func (c *Client) ListFirewalls(ctx context.Context) ([]Firewall, error) {
	return listAll[Firewall](ctx, c, "/firewalls", "firewalls")
}

func (c *Client) GetFirewall(ctx context.Context, id string) (*Firewall, error) {
	var fw Firewall
	if err := c.get(ctx, "/firewalls/"+id, "firewall", &fw); err != nil {
		return nil, err
	}
	return &fw, nil
}

func (c *Client) CreateFirewall(ctx context.Context, fw Firewall) (*Firewall, error) {
	var created Firewall
	if err := c.callInto(ctx, http.MethodPost, "/firewalls", fw, "firewall", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) DeleteFirewall(ctx context.Context, id string) error {
	_, err := c.Call(ctx, http.MethodDelete, "/firewalls/"+id, nil)
	return err
}

func (c *Client) AddDropletsToFirewall(ctx context.Context, id string, dropletIDs []int64) error {
	_, err := c.Call(ctx, http.MethodPost, "/firewalls/"+id+"/droplets", map[string][]int64{"droplet_ids": dropletIDs})
	return err
}

func (c *Client) RemoveDropletsFromFirewall(ctx context.Context, id string, dropletIDs []int64) error {
	_, err := c.Call(ctx, http.MethodDelete, "/firewalls/"+id+"/droplets", map[string][]int64{"droplet_ids": dropletIDs})
	return err
}

type rulesRequest struct {
	InboundRules  []InboundRule  `json:"inbound_rules,omitempty"`
	OutboundRules []OutboundRule `json:"outbound_rules,omitempty"`
}

func (c *Client) AddRules(ctx context.Context, id string, inbound []InboundRule, outbound []OutboundRule) error {
	_, err := c.Call(ctx, http.MethodPost, "/firewalls/"+id+"/rules", rulesRequest{inbound, outbound})
	return err
}

func (c *Client) RemoveRules(ctx context.Context, id string, inbound []InboundRule, outbound []OutboundRule) error {
	_, err := c.Call(ctx, http.MethodDelete, "/firewalls/"+id+"/rules", rulesRequest{inbound, outbound})
	return err
}
