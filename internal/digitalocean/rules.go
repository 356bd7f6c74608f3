package digitalocean

import (
	"fmt"
	"net"
	"strings"

	"droplet_console/internal/apperr"
)

type SelectorKind string

const (
	SelectorAddresses SelectorKind = "addresses"
	SelectorDroplets  SelectorKind = "droplet_ids"
	SelectorTags      SelectorKind = "tags"
)

// Selector picks the peers a rule applies to: exactly one of a CIDR list,
// a droplet id list or a tag list.
type Selector struct {
	Addresses  []string `json:"addresses,omitempty"`
	DropletIDs []int64  `json:"droplet_ids,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func (s Selector) Kind() (SelectorKind, error) {
	var kinds []SelectorKind
	if len(s.Addresses) > 0 {
		kinds = append(kinds, SelectorAddresses)
	}
	if len(s.DropletIDs) > 0 {
		kinds = append(kinds, SelectorDroplets)
	}
	if len(s.Tags) > 0 {
		kinds = append(kinds, SelectorTags)
	}
	if len(kinds) != 1 {
		return "", apperr.New(apperr.CodeValidation,
			"each rule needs exactly one of addresses, droplet_ids or tags")
	}
	return kinds[0], nil
}

func (s Selector) validate() error {
	kind, err := s.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case SelectorAddresses:
		for _, a := range s.Addresses {
			if !validAddress(a) {
				return apperr.Newf(apperr.CodeValidation, "invalid address %q", a)
			}
		}
	case SelectorDroplets:
		for _, id := range s.DropletIDs {
			if id <= 0 {
				return apperr.Newf(apperr.CodeValidation, "invalid droplet id %d", id)
			}
		}
	case SelectorTags:
		for _, tag := range s.Tags {
			if strings.TrimSpace(tag) == "" {
				return apperr.New(apperr.CodeValidation, "tags must not be blank")
			}
		}
	}
	return nil
}

func (s Selector) wire() Addresses {
	return Addresses{Addresses: s.Addresses, DropletIDs: s.DropletIDs, Tags: s.Tags}
}

func validAddress(a string) bool {
	if _, _, err := net.ParseCIDR(a); err == nil {
		return true
	}
	return net.ParseIP(a) != nil
}

// Rule is the console's protocol-agnostic view of an inbound or outbound rule.
type Rule struct {
	Protocol string   `json:"protocol" binding:"required"`
	Ports    string   `json:"ports"`
	Peers    Selector `json:"peers"`
}

func (r Rule) Validate() error {
	switch strings.ToLower(r.Protocol) {
	case "tcp", "udp":
		if strings.TrimSpace(r.Ports) == "" {
			return apperr.Newf(apperr.CodeValidation, "%s rules need ports (a port, a range or \"all\")", r.Protocol)
		}
	case "icmp":
	default:
		return apperr.Newf(apperr.CodeValidation, "unsupported protocol %q", r.Protocol)
	}
	return r.Peers.validate()
}

func (r Rule) Inbound() InboundRule {
	return InboundRule{Protocol: strings.ToLower(r.Protocol), Ports: r.Ports, Sources: r.Peers.wire()}
}

func (r Rule) Outbound() OutboundRule {
	return OutboundRule{Protocol: strings.ToLower(r.Protocol), Ports: r.Ports, Destinations: r.Peers.wire()}
}

// BuildRules validates and translates console rules into the wire shape.
func BuildRules(inbound, outbound []Rule) ([]InboundRule, []OutboundRule, error) {
	in := make([]InboundRule, 0, len(inbound))
	for i, r := range inbound {
		if err := r.Validate(); err != nil {
			return nil, nil, prefix(err, fmt.Sprintf("inbound rule %d", i+1))
		}
		in = append(in, r.Inbound())
	}
	out := make([]OutboundRule, 0, len(outbound))
	for i, r := range outbound {
		if err := r.Validate(); err != nil {
			return nil, nil, prefix(err, fmt.Sprintf("outbound rule %d", i+1))
		}
		out = append(out, r.Outbound())
	}
	return in, out, nil
}

func prefix(err error, where string) error {
	return apperr.Newf(apperr.GetCode(err), "%s: %s", where, apperr.Message(err))
}
