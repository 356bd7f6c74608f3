package droplets_test

import (
	"context"
	"fmt"
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
	"droplet_console/internal/droplets"
	"droplet_console/internal/models"
	"droplet_console/internal/permissions"
)

type fixedToken string

func (f fixedToken) ActiveToken(context.Context) (string, error) { return string(f), nil }

func noSleep(context.Context, time.Duration) error { return nil }

type env struct {
	db  *gorm.DB
	srv *dotest.Server
	do  *digitalocean.Client
	svc *droplets.Service
}

func setup(t *testing.T) *env {
	t.Helper()
	gdb := dbtest.Open(t)
	srv := dotest.New(t)
	client := digitalocean.NewClient(fixedToken("tok"),
		digitalocean.WithBaseURL(srv.BaseURL()),
		digitalocean.WithSleep(noSleep))
	svc := droplets.NewService(gdb, client, zap.NewNop())
	svc.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, gdb.Create(&models.ServerRegion{Slug: "nyc1", Location: "New York, USA", IsActive: true}).Error)
	return &env{db: gdb, srv: srv, do: client, svc: svc}
}

func (e *env) user(t *testing.T, balance float64, maxServers int) models.User {
	t.Helper()
	role := models.Role{Name: fmt.Sprintf("role-%d", time.Now().UnixNano()), Permissions: "[]", MaxServers: maxServers}
	require.NoError(t, e.db.Create(&role).Error)
	u := models.User{
		Email:   fmt.Sprintf("u%d@example.com", role.ID),
		Name:    "Test User",
		RoleID:  role.ID,
		Balance: balance,
		Status:  models.UserActive,
	}
	require.NoError(t, e.db.Create(&u).Error)
	return u
}

func (e *env) template(t *testing.T, slug string, price float64) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.ServerTemplate{
		Name: "Basic " + slug, SizeSlug: slug, CPU: 1, RAM: 1024, Disk: 25, Price: price, IsActive: true,
	}).Error)
}

func (e *env) mirror(t *testing.T, ownerID int64, d digitalocean.Droplet, status models.DropletStatus) models.Droplet {
	t.Helper()
	row := models.Droplet{
		DOID: d.ID, UserID: ownerID, Name: d.Name, Status: status,
		IP: "198.51.100.1", Region: "nyc1", Size: "s-1vcpu-1gb", Image: "ubuntu-24-04-x64",
		OriginalPrice: 8, Price: 9.6,
	}
	require.NoError(t, e.db.Create(&row).Error)
	return row
}

func (e *env) balance(t *testing.T, id int64) float64 {
	t.Helper()
	var u models.User
	require.NoError(t, e.db.First(&u, id).Error)
	return u.Balance
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

var validInput = droplets.CreateInput{Name: "web-01", Region: "nyc1", Size: "s-1vcpu-1gb", Image: "ubuntu-24-04-x64"}

func TestCreateForOwnerChargesMarkedUpPrice(t *testing.T) {
	e := setup(t)
	u := e.user(t, 10.00, 0)
	e.template(t, "s-1vcpu-1gb", 8.00)

	v, err := e.svc.CreateForOwner(context.Background(), u.ID, validInput)
	require.NoError(t, err)
	assert.InDelta(t, 9.60, v.Price, 1e-9)
	assert.Equal(t, models.DropletNew, v.Status)

	assert.InDelta(t, 0.40, e.balance(t, u.ID), 1e-9)

	var txs []models.Transaction
	require.NoError(t, e.db.Find(&txs).Error)
	require.Len(t, txs, 1)
	assert.InDelta(t, -9.60, txs[0].Amount, 1e-9)
	assert.Equal(t, models.TransactionDropletCreate, txs[0].Type)
	require.NotNil(t, txs[0].DropletID)

	var row models.Droplet
	require.NoError(t, e.db.First(&row, *txs[0].DropletID).Error)
	assert.Equal(t, v.DOID, row.DOID)
	assert.InDelta(t, 8.00, row.OriginalPrice, 1e-9)
	require.NotNil(t, row.NextBillingDate)
	assert.Equal(t, time.April, row.NextBillingDate.Month())

	remote, ok := e.srv.Droplet(v.DOID)
	require.True(t, ok)
	assert.Contains(t, remote.Tags, droplets.OwnerTag(u.ID))
	assert.Equal(t, 1, e.srv.Calls(http.MethodPost, "/v2/droplets"))
}

func TestCreateForOwnerInsufficientBalance(t *testing.T) {
	e := setup(t)
	u := e.user(t, 5.00, 0)
	e.template(t, "s-1vcpu-1gb", 8.00)

	_, err := e.svc.CreateForOwner(context.Background(), u.ID, validInput)
	assert.Equal(t, apperr.CodeInsufficientBalance, apperr.GetCode(err))

	assert.Zero(t, e.srv.TotalCalls())
	assert.Zero(t, e.count(t, &models.Transaction{}))
	assert.Zero(t, e.count(t, &models.Droplet{}))
	assert.InDelta(t, 5.00, e.balance(t, u.ID), 1e-9)
}

func TestCreateForOwnerValidatesInput(t *testing.T) {
	e := setup(t)
	u := e.user(t, 100, 0)
	e.template(t, "s-1vcpu-1gb", 8.00)

	_, err := e.svc.CreateForOwner(context.Background(), u.ID, droplets.CreateInput{Name: "web", Size: "s-1vcpu-1gb"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.GetCode(err))
	assert.Contains(t, apperr.Message(err), "region, image")

	in := validInput
	in.Size = "gpu-h100x8"
	_, err = e.svc.CreateForOwner(context.Background(), u.ID, in)
	assert.Equal(t, apperr.CodeValidation, apperr.GetCode(err))
	assert.Zero(t, e.srv.TotalCalls())
}

func TestCreateForOwnerChecksRegionCatalog(t *testing.T) {
	e := setup(t)
	u := e.user(t, 100, 0)
	e.template(t, "s-1vcpu-1gb", 8.00)
	require.NoError(t, e.db.Create(&[]models.ServerRegion{
		{Slug: "lon1", Location: "London, UK"},
		{Slug: "ams3", Location: "Amsterdam, Netherlands", IsActive: true, IsAdminOnly: true},
	}).Error)

	for region, code := range map[string]apperr.Code{
		"lon1": apperr.CodeValidation,
		"xyz9": apperr.CodeValidation,
		"ams3": apperr.CodePermissionDenied,
	} {
		in := validInput
		in.Region = region
		_, err := e.svc.CreateForOwner(context.Background(), u.ID, in)
		assert.Equal(t, code, apperr.GetCode(err), region)
	}
	assert.Zero(t, e.srv.TotalCalls())

	admin := models.Role{Name: permissions.RoleAdmin, Permissions: "[]"}
	require.NoError(t, e.db.Create(&admin).Error)
	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", u.ID).Update("role_id", admin.ID).Error)

	in := validInput
	in.Region = "ams3"
	v, err := e.svc.CreateForOwner(context.Background(), u.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "ams3", v.Region)
}

func TestCreateForOwnerEnforcesRoleQuota(t *testing.T) {
	e := setup(t)
	u := e.user(t, 100, 1)
	e.template(t, "s-1vcpu-1gb", 8.00)

	_, err := e.svc.CreateForOwner(context.Background(), u.ID, validInput)
	require.NoError(t, err)

	_, err = e.svc.CreateForOwner(context.Background(), u.ID, validInput)
	assert.Equal(t, apperr.CodeQuotaExceeded, apperr.GetCode(err))
	assert.Equal(t, 1, e.srv.Calls(http.MethodPost, "/v2/droplets"))
}

func TestCreateForOwnerRemoteFailureLeavesNoTrace(t *testing.T) {
	e := setup(t)
	u := e.user(t, 10, 0)
	e.template(t, "s-1vcpu-1gb", 8.00)
	e.srv.FailNext(http.MethodPost, "/v2/droplets", http.StatusUnprocessableEntity)

	_, err := e.svc.CreateForOwner(context.Background(), u.ID, validInput)
	assert.Equal(t, apperr.CodeRemoteUnclassified, apperr.GetCode(err))
	assert.InDelta(t, 10.0, e.balance(t, u.ID), 1e-9)
	assert.Zero(t, e.count(t, &models.Transaction{}))
}

// drainingProvider spends the owner's balance while the remote create is in
// flight, the way a concurrent request would.
type drainingProvider struct {
	droplets.Provider
	db     *gorm.DB
	userID int64
}

func (p drainingProvider) CreateDroplet(ctx context.Context, req digitalocean.DropletCreateRequest) (*digitalocean.Droplet, error) {
	if err := p.db.Model(&models.User{}).Where("id = ?", p.userID).Update("balance", 1).Error; err != nil {
		return nil, err
	}
	return p.Provider.CreateDroplet(ctx, req)
}

func TestCreateForOwnerConcurrentSpendRollsBackRemote(t *testing.T) {
	e := setup(t)
	u := e.user(t, 10, 0)
	e.template(t, "s-1vcpu-1gb", 8.00)
	e.svc.Remote = drainingProvider{Provider: e.do, db: e.db, userID: u.ID}

	_, err := e.svc.CreateForOwner(context.Background(), u.ID, validInput)
	assert.Equal(t, apperr.CodeInsufficientBalance, apperr.GetCode(err))

	assert.InDelta(t, 1.0, e.balance(t, u.ID), 1e-9)
	assert.Zero(t, e.count(t, &models.Transaction{}))
	assert.Zero(t, e.count(t, &models.Droplet{}))
	assert.Equal(t, 1, e.srv.Calls(http.MethodPost, "/v2/droplets"))

	remote, err := e.do.ListDroplets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remote, "remote droplet should have been deleted")
}

func TestListForOwnerMergesAndFallsBack(t *testing.T) {
	e := setup(t)
	u := e.user(t, 0, 0)
	other := e.user(t, 0, 0)

	live := e.srv.AddDroplet(digitalocean.Droplet{Name: "live", Status: "off", Memory: 2048, VCPUs: 2,
		Networks: digitalocean.Networks{V4: []digitalocean.NetworkV4{{IPAddress: "203.0.113.9", Type: "public"}}}})
	gone := digitalocean.Droplet{ID: 99999, Name: "gone"}
	foreign := e.srv.AddDroplet(digitalocean.Droplet{Name: "foreign"})

	e.mirror(t, u.ID, live, models.DropletActive)
	e.mirror(t, u.ID, gone, models.DropletActive)
	e.mirror(t, other.ID, foreign, models.DropletActive)

	views, err := e.svc.ListForOwner(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.True(t, views[0].Live)
	assert.Equal(t, models.DropletOff, views[0].Status)
	assert.Equal(t, "203.0.113.9", views[0].IP)
	assert.Equal(t, 2048, views[0].Memory)
	assert.InDelta(t, 9.6, views[0].Price, 1e-9)

	assert.False(t, views[1].Live)
	assert.Equal(t, "gone", views[1].Name)
	assert.Equal(t, models.DropletActive, views[1].Status)

	var row models.Droplet
	require.NoError(t, e.db.Where("do_id = ?", live.ID).First(&row).Error)
	assert.Equal(t, models.DropletOff, row.Status, "drift written back")
	assert.Equal(t, "203.0.113.9", row.IP)
}

func TestListForOwnerServesMirrorWhenRemoteDown(t *testing.T) {
	e := setup(t)
	u := e.user(t, 0, 0)
	for i := 0; i < 3; i++ {
		e.mirror(t, u.ID, e.srv.AddDroplet(digitalocean.Droplet{Name: fmt.Sprintf("d%d", i)}), models.DropletActive)
	}
	e.srv.FailNext(http.MethodGet, "/v2/droplets", 500, 500, 500)

	views, err := e.svc.ListForOwner(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, views, 3)
	for _, v := range views {
		assert.False(t, v.Live)
	}
}

func TestListForOwnerEmpty(t *testing.T) {
	e := setup(t)
	u := e.user(t, 0, 0)

	views, err := e.svc.ListForOwner(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
	assert.Zero(t, e.srv.TotalCalls())
}

func TestGetForOwner(t *testing.T) {
	e := setup(t)
	u := e.user(t, 0, 0)
	other := e.user(t, 0, 0)
	d := e.srv.AddDroplet(digitalocean.Droplet{Name: "api"})
	e.mirror(t, u.ID, d, models.DropletNew)

	v, err := e.svc.GetForOwner(context.Background(), u.ID, d.ID)
	require.NoError(t, err)
	assert.True(t, v.Live)
	assert.Equal(t, models.DropletActive, v.Status)

	_, err = e.svc.GetForOwner(context.Background(), other.ID, d.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.GetCode(err))

	e.srv.RemoveDroplet(d.ID)
	v, err = e.svc.GetForOwner(context.Background(), u.ID, d.ID)
	require.NoError(t, err)
	assert.False(t, v.Live)
}

func TestPowerActionGoesPendingUntilConfirmed(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	u := e.user(t, 0, 0)
	d := e.srv.AddDroplet(digitalocean.Droplet{Name: "db", Status: "active"})
	e.mirror(t, u.ID, d, models.DropletActive)

	v, act, err := e.svc.PowerAction(ctx, u.ID, d.ID, digitalocean.ActionPowerOff)
	require.NoError(t, err)
	assert.Equal(t, models.DropletPendingOff, v.Status)
	assert.Equal(t, digitalocean.ActionPowerOff, act.Type)

	views, err := e.svc.ListForOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropletPendingOff, views[0].Status)

	e.srv.SetStatus(d.ID, "off")
	views, err = e.svc.ListForOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropletOff, views[0].Status)

	v, _, err = e.svc.PowerAction(ctx, u.ID, d.ID, digitalocean.ActionReboot)
	require.NoError(t, err)
	assert.Equal(t, models.DropletOff, v.Status)
}

func TestPendingStatusYieldsOnceActionIsOver(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	u := e.user(t, 0, 0)
	d := e.srv.AddDroplet(digitalocean.Droplet{Name: "db", Status: "active"})
	e.mirror(t, u.ID, d, models.DropletActive)

	_, act, err := e.svc.PowerAction(ctx, u.ID, d.ID, digitalocean.ActionPowerOff)
	require.NoError(t, err)

	var row models.Droplet
	require.NoError(t, e.db.Where("do_id = ?", d.ID).First(&row).Error)
	require.NotNil(t, row.PendingActionID)
	assert.Equal(t, act.ID, *row.PendingActionID)
	require.NotNil(t, row.PendingSince)

	e.srv.FinishAction(act.ID, digitalocean.ActionErrored)
	views, err := e.svc.ListForOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropletActive, views[0].Status)

	require.NoError(t, e.db.Where("do_id = ?", d.ID).First(&row).Error)
	assert.Equal(t, models.DropletActive, row.Status)
	assert.Nil(t, row.PendingActionID)
	assert.Nil(t, row.PendingSince)
}

func TestPendingStatusExpires(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	u := e.user(t, 0, 0)
	d := e.srv.AddDroplet(digitalocean.Droplet{Name: "db", Status: "off"})
	e.mirror(t, u.ID, d, models.DropletOff)

	_, _, err := e.svc.PowerAction(ctx, u.ID, d.ID, digitalocean.ActionPowerOn)
	require.NoError(t, err)

	v, err := e.svc.GetForOwner(ctx, u.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropletPendingActive, v.Status, "action still in progress")

	start := e.svc.Now()
	e.svc.Now = func() time.Time { return start.Add(20 * time.Minute) }
	v, err = e.svc.GetForOwner(ctx, u.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropletOff, v.Status)
}

func TestPowerActionRejects(t *testing.T) {
	e := setup(t)
	u := e.user(t, 0, 0)
	other := e.user(t, 0, 0)
	d := e.srv.AddDroplet(digitalocean.Droplet{Name: "db"})
	e.mirror(t, u.ID, d, models.DropletActive)

	_, _, err := e.svc.PowerAction(context.Background(), u.ID, d.ID, "snapshot")
	assert.Equal(t, apperr.CodeValidation, apperr.GetCode(err))

	_, _, err = e.svc.PowerAction(context.Background(), other.ID, d.ID, digitalocean.ActionPowerOn)
	assert.Equal(t, apperr.CodeNotFound, apperr.GetCode(err))
	assert.Zero(t, e.srv.Calls(http.MethodPost, fmt.Sprintf("/v2/droplets/%d/actions", d.ID)))
}

func TestDeleteArchivesMirror(t *testing.T) {
	e := setup(t)
	u := e.user(t, 0, 0)
	d := e.srv.AddDroplet(digitalocean.Droplet{Name: "tmp"})
	row := e.mirror(t, u.ID, d, models.DropletActive)
	fw := models.Firewall{DOID: "fw-1", UserID: u.ID, Name: "web"}
	require.NoError(t, e.db.Create(&fw).Error)
	require.NoError(t, e.db.Create(&models.FirewallDroplet{FirewallID: fw.ID, DropletID: row.ID}).Error)

	require.NoError(t, e.svc.Delete(context.Background(), u.ID, d.ID))

	_, ok := e.srv.Droplet(d.ID)
	assert.False(t, ok)
	assert.Zero(t, e.count(t, &models.Droplet{}))
	assert.Zero(t, e.count(t, &models.FirewallDroplet{}))

	var archived models.Droplet
	require.NoError(t, e.db.Unscoped().First(&archived, row.ID).Error)
	assert.Equal(t, models.DropletArchived, archived.Status)
	assert.True(t, archived.DeletedAt.Valid)
}

func TestDeleteToleratesRemoteNotFound(t *testing.T) {
	e := setup(t)
	u := e.user(t, 0, 0)
	e.mirror(t, u.ID, digitalocean.Droplet{ID: 4242, Name: "ghost"}, models.DropletOff)

	require.NoError(t, e.svc.Delete(context.Background(), u.ID, 4242))
	assert.Zero(t, e.count(t, &models.Droplet{}))
}

func TestDeleteKeepsMirrorOnRemoteFailure(t *testing.T) {
	e := setup(t)
	u := e.user(t, 0, 0)
	d := e.srv.AddDroplet(digitalocean.Droplet{Name: "tmp"})
	e.mirror(t, u.ID, d, models.DropletActive)
	e.srv.FailNext(http.MethodDelete, fmt.Sprintf("/v2/droplets/%d", d.ID), 500, 500, 500)

	err := e.svc.Delete(context.Background(), u.ID, d.ID)
	assert.Equal(t, apperr.CodeRemoteServerError, apperr.GetCode(err))
	assert.Equal(t, int64(1), e.count(t, &models.Droplet{}))
}

func TestSweepRepairsMissingMirrorRows(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	u := e.user(t, 0, 0)
	e.template(t, "s-2vcpu-2gb", 18)

	orphan := e.srv.AddDroplet(digitalocean.Droplet{Name: "orphan", SizeSlug: "s-2vcpu-2gb",
		Tags: []string{droplets.ConsoleTag, droplets.OwnerTag(u.ID)}})
	known := e.srv.AddDroplet(digitalocean.Droplet{Name: "known",
		Tags: []string{droplets.ConsoleTag, droplets.OwnerTag(u.ID)}})
	e.mirror(t, u.ID, known, models.DropletActive)
	e.srv.AddDroplet(digitalocean.Droplet{Name: "stray", Tags: []string{droplets.ConsoleTag, droplets.OwnerTag(987654)}})
	e.srv.AddDroplet(digitalocean.Droplet{Name: "unmanaged"})

	res, err := e.svc.Sweep(ctx)
	require.Error(t, err, "unknown owner is reported")
	assert.Contains(t, err.Error(), "owner 987654 not found")
	assert.Equal(t, 3, res.Seen)
	assert.Equal(t, 1, res.Repaired)
	require.Len(t, res.Mirrored, 1)
	assert.Equal(t, orphan.ID, res.Mirrored[0].DOID)

	var row models.Droplet
	require.NoError(t, e.db.Where("do_id = ?", orphan.ID).First(&row).Error)
	assert.Equal(t, u.ID, row.UserID)
	assert.InDelta(t, 18, row.OriginalPrice, 1e-9)
	assert.InDelta(t, 21.6, row.Price, 1e-9)
	assert.Zero(t, e.count(t, &models.Transaction{}))

	res, _ = e.svc.Sweep(ctx)
	assert.Equal(t, 0, res.Repaired)
}

func TestSweepLeavesFreshDropletsToCreate(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	u := e.user(t, 0, 0)
	now := e.svc.Now()
	fresh := e.srv.AddDroplet(digitalocean.Droplet{Name: "fresh", SizeSlug: "s-1vcpu-1gb", CreatedAt: now.Add(-time.Minute),
		Tags: []string{droplets.ConsoleTag, droplets.OwnerTag(u.ID)}})

	res, err := e.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Seen)
	assert.Zero(t, res.Repaired)
	assert.Zero(t, e.count(t, &models.Droplet{}))

	e.svc.Now = func() time.Time { return now.Add(15 * time.Minute) }
	res, err = e.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, res.Mirrored, 1)
	assert.Equal(t, fresh.ID, res.Mirrored[0].DOID)
}
