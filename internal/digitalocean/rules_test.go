package digitalocean_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droplet_console/internal/apperr"
	"droplet_console/internal/digitalocean"
)

func TestSelectorKind(t *testing.T) {
	kind, err := digitalocean.Selector{Tags: []string{"web"}}.Kind()
	require.NoError(t, err)
	assert.Equal(t, digitalocean.SelectorTags, kind)

	_, err = digitalocean.Selector{}.Kind()
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = digitalocean.Selector{Addresses: []string{"0.0.0.0/0"}, DropletIDs: []int64{1}}.Kind()
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    digitalocean.Rule
		wantErr bool
	}{
		{"tcp with cidr", digitalocean.Rule{Protocol: "tcp", Ports: "22", Peers: digitalocean.Selector{Addresses: []string{"10.0.0.0/8"}}}, false},
		{"udp with plain ip", digitalocean.Rule{Protocol: "UDP", Ports: "53", Peers: digitalocean.Selector{Addresses: []string{"::1"}}}, false},
		{"icmp without ports", digitalocean.Rule{Protocol: "icmp", Peers: digitalocean.Selector{Tags: []string{"k8s"}}}, false},
		{"tcp without ports", digitalocean.Rule{Protocol: "tcp", Peers: digitalocean.Selector{Tags: []string{"k8s"}}}, true},
		{"unknown protocol", digitalocean.Rule{Protocol: "gre", Ports: "all", Peers: digitalocean.Selector{Tags: []string{"k8s"}}}, true},
		{"bad address", digitalocean.Rule{Protocol: "tcp", Ports: "80", Peers: digitalocean.Selector{Addresses: []string{"not-an-ip"}}}, true},
		{"bad droplet id", digitalocean.Rule{Protocol: "tcp", Ports: "80", Peers: digitalocean.Selector{DropletIDs: []int64{0}}}, true},
		{"blank tag", digitalocean.Rule{Protocol: "tcp", Ports: "80", Peers: digitalocean.Selector{Tags: []string{" "}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.CodeValidation), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBuildRules(t *testing.T) {
	in, out, err := digitalocean.BuildRules(
		[]digitalocean.Rule{{Protocol: "TCP", Ports: "443", Peers: digitalocean.Selector{Addresses: []string{"0.0.0.0/0"}}}},
		[]digitalocean.Rule{{Protocol: "icmp", Peers: digitalocean.Selector{DropletIDs: []int64{5}}}},
	)
	require.NoError(t, err)
	require.Len(t, in, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "tcp", in[0].Protocol)
	assert.Equal(t, []string{"0.0.0.0/0"}, in[0].Sources.Addresses)
	assert.Equal(t, []int64{5}, out[0].Destinations.DropletIDs)

	_, _, err = digitalocean.BuildRules(nil, []digitalocean.Rule{
		{Protocol: "tcp", Ports: "80", Peers: digitalocean.Selector{Tags: []string{"a"}}},
		{Protocol: "tcp", Peers: digitalocean.Selector{Tags: []string{"a"}}},
	})
	require.Error(t, err)
	assert.Contains(t, apperr.Message(err), "outbound rule 2")
}
