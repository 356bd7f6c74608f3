package firewalls_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/db/dbtest"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/digitalocean/dotest"
	"droplet_console/internal/firewalls"
	"droplet_console/internal/models"
)

type fixedToken string

func (f fixedToken) ActiveToken(context.Context) (string, error) { return string(f), nil }

type env struct {
	db    *gorm.DB
	srv   *dotest.Server
	svc   *firewalls.Service
	owner models.User
	other models.User
}

func setup(t *testing.T) *env {
	t.Helper()
	gdb := dbtest.Open(t)
	srv := dotest.New(t)
	client := digitalocean.NewClient(fixedToken("tok"),
		digitalocean.WithBaseURL(srv.BaseURL()),
		digitalocean.WithSleep(func(context.Context, time.Duration) error { return nil }))

	role := models.Role{Name: "user", Permissions: "[]"}
	require.NoError(t, gdb.Create(&role).Error)
	owner := models.User{Email: "owner@example.com", RoleID: role.ID, Status: models.UserActive}
	other := models.User{Email: "other@example.com", RoleID: role.ID, Status: models.UserActive}
	require.NoError(t, gdb.Create(&owner).Error)
	require.NoError(t, gdb.Create(&other).Error)

	return &env{db: gdb, srv: srv, svc: firewalls.NewService(gdb, client, zap.NewNop()), owner: owner, other: other}
}

func (e *env) droplet(t *testing.T, ownerID int64, name string) models.Droplet {
	t.Helper()
	d := e.srv.AddDroplet(digitalocean.Droplet{Name: name})
	row := models.Droplet{DOID: d.ID, UserID: ownerID, Name: name, Status: models.DropletActive}
	require.NoError(t, e.db.Create(&row).Error)
	return row
}

func (e *env) memberships(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.FirewallDroplet{}).Count(&n).Error)
	return n
}

var httpsIn = digitalocean.Rule{Protocol: "tcp", Ports: "443", Peers: digitalocean.Selector{Addresses: []string{"0.0.0.0/0"}}}

func TestCreateMirrorsFirewall(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	d := e.droplet(t, e.owner.ID, "web-01")

	v, err := e.svc.Create(ctx, e.owner.ID, firewalls.CreateInput{
		Name:       "web",
		Inbound:    []digitalocean.Rule{httpsIn},
		DropletIDs: []int64{d.DOID},
	})
	require.NoError(t, err)
	assert.True(t, v.Live)
	assert.Equal(t, []int64{d.DOID}, v.DropletIDs)

	remote, ok := e.srv.Firewall(v.ID)
	require.True(t, ok)
	assert.Equal(t, "443", remote.InboundRules[0].Ports)

	var row models.Firewall
	require.NoError(t, e.db.Preload("Droplets").Where("do_id = ?", v.ID).First(&row).Error)
	assert.Equal(t, e.owner.ID, row.UserID)
	require.Len(t, row.Droplets, 1)
	assert.Equal(t, d.ID, row.Droplets[0].ID)
	assert.Contains(t, string(row.InboundRules), `"0.0.0.0/0"`)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	foreign := e.droplet(t, e.other.ID, "theirs")

	cases := []firewalls.CreateInput{
		{Name: " ", Inbound: []digitalocean.Rule{httpsIn}},
		{Name: "empty"},
		{Name: "mixed", Inbound: []digitalocean.Rule{{Protocol: "tcp", Ports: "22",
			Peers: digitalocean.Selector{Addresses: []string{"10.0.0.0/8"}, Tags: []string{"x"}}}}},
		{Name: "foreign", Inbound: []digitalocean.Rule{httpsIn}, DropletIDs: []int64{foreign.DOID}},
	}
	for _, in := range cases {
		_, err := e.svc.Create(ctx, e.owner.ID, in)
		assert.Equal(t, apperr.CodeValidation, apperr.GetCode(err), in.Name)
	}
	assert.Zero(t, e.srv.Calls(http.MethodPost, "/v2/firewalls"))
}

func TestCreateRollsBackRemoteWhenMirrorFails(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.db.Migrator().DropTable(&models.Firewall{}))

	_, err := e.svc.Create(context.Background(), e.owner.ID, firewalls.CreateInput{
		Name:    "web",
		Inbound: []digitalocean.Rule{httpsIn},
	})
	assert.Equal(t, apperr.CodeInternal, apperr.GetCode(err))
	assert.Equal(t, 1, e.srv.Calls(http.MethodPost, "/v2/firewalls"))
	assert.Zero(t, e.srv.FirewallCount())
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	a := e.droplet(t, e.owner.ID, "a")
	b := e.droplet(t, e.owner.ID, "b")
	v, err := e.svc.Create(ctx, e.owner.ID, firewalls.CreateInput{Name: "web", Inbound: []digitalocean.Rule{httpsIn}})
	require.NoError(t, err)

	require.NoError(t, e.svc.AddMembers(ctx, e.owner.ID, v.ID, []int64{a.DOID, b.DOID}))
	require.NoError(t, e.svc.AddMembers(ctx, e.owner.ID, v.ID, []int64{a.DOID}))
	assert.Equal(t, int64(2), e.memberships(t))

	require.NoError(t, e.svc.RemoveMembers(ctx, e.owner.ID, v.ID, []int64{a.DOID}))
	assert.Equal(t, int64(1), e.memberships(t))

	remote, _ := e.srv.Firewall(v.ID)
	assert.Equal(t, []int64{b.DOID}, remote.DropletIDs)

	err = e.svc.AddMembers(ctx, e.other.ID, v.ID, []int64{a.DOID})
	assert.Equal(t, apperr.CodeNotFound, apperr.GetCode(err))
	err = e.svc.AddMembers(ctx, e.owner.ID, v.ID, nil)
	assert.Equal(t, apperr.CodeValidation, apperr.GetCode(err))
}

func TestMembersRemoteFailureKeepsMirror(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	a := e.droplet(t, e.owner.ID, "a")
	v, err := e.svc.Create(ctx, e.owner.ID, firewalls.CreateInput{Name: "web", Inbound: []digitalocean.Rule{httpsIn}})
	require.NoError(t, err)

	e.srv.FailNext(http.MethodPost, "/v2/firewalls/"+v.ID+"/droplets", http.StatusUnprocessableEntity)
	err = e.svc.AddMembers(ctx, e.owner.ID, v.ID, []int64{a.DOID})
	assert.Equal(t, apperr.CodeRemoteUnclassified, apperr.GetCode(err))
	assert.Zero(t, e.memberships(t))
}

func TestRulesAreMirroredFromProvider(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	v, err := e.svc.Create(ctx, e.owner.ID, firewalls.CreateInput{Name: "web", Inbound: []digitalocean.Rule{httpsIn}})
	require.NoError(t, err)

	ssh := digitalocean.Rule{Protocol: "tcp", Ports: "22", Peers: digitalocean.Selector{Tags: []string{"bastion"}}}
	dns := digitalocean.Rule{Protocol: "udp", Ports: "53", Peers: digitalocean.Selector{Addresses: []string{"0.0.0.0/0"}}}
	v2, err := e.svc.AddRules(ctx, e.owner.ID, v.ID, []digitalocean.Rule{ssh}, []digitalocean.Rule{dns})
	require.NoError(t, err)
	assert.Len(t, v2.InboundRules, 2)
	assert.Len(t, v2.OutboundRules, 1)

	var row models.Firewall
	require.NoError(t, e.db.Where("do_id = ?", v.ID).First(&row).Error)
	assert.Contains(t, string(row.InboundRules), "bastion")

	v3, err := e.svc.RemoveRules(ctx, e.owner.ID, v.ID, []digitalocean.Rule{ssh}, nil)
	require.NoError(t, err)
	assert.Len(t, v3.InboundRules, 1)

	_, err = e.svc.AddRules(ctx, e.owner.ID, v.ID, nil, nil)
	assert.Equal(t, apperr.CodeValidation, apperr.GetCode(err))
}

func TestListAndGetFallBackToMirror(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	d := e.droplet(t, e.owner.ID, "a")
	v, err := e.svc.Create(ctx, e.owner.ID, firewalls.CreateInput{
		Name: "web", Inbound: []digitalocean.Rule{httpsIn}, DropletIDs: []int64{d.DOID},
	})
	require.NoError(t, err)

	list, err := e.svc.ListForOwner(ctx, e.owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Live)

	others, err := e.svc.ListForOwner(ctx, e.other.ID)
	require.NoError(t, err)
	assert.Empty(t, others)

	e.srv.FailNext(http.MethodGet, "/v2/firewalls", 503, 503, 503)
	list, err = e.svc.ListForOwner(ctx, e.owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Live)
	assert.Equal(t, "web", list[0].Name)
	assert.Equal(t, []int64{d.DOID}, list[0].DropletIDs)
	require.Len(t, list[0].InboundRules, 1)
	assert.Equal(t, "443", list[0].InboundRules[0].Ports)

	e.srv.FailNext(http.MethodGet, "/v2/firewalls/"+v.ID, 500, 500, 500)
	got, err := e.svc.GetForOwner(ctx, e.owner.ID, v.ID)
	require.NoError(t, err)
	assert.False(t, got.Live)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	d := e.droplet(t, e.owner.ID, "a")
	v, err := e.svc.Create(ctx, e.owner.ID, firewalls.CreateInput{
		Name: "web", Inbound: []digitalocean.Rule{httpsIn}, DropletIDs: []int64{d.DOID},
	})
	require.NoError(t, err)

	assert.Equal(t, apperr.CodeNotFound, apperr.GetCode(e.svc.Delete(ctx, e.other.ID, v.ID)))

	require.NoError(t, e.svc.Delete(ctx, e.owner.ID, v.ID))
	_, ok := e.srv.Firewall(v.ID)
	assert.False(t, ok)
	assert.Zero(t, e.memberships(t))

	var n int64
	require.NoError(t, e.db.Model(&models.Firewall{}).Count(&n).Error)
	assert.Zero(t, n)
}
