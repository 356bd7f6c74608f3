package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"droplet_console/internal/activity"
	"droplet_console/internal/db/dbtest"
	"droplet_console/internal/droplets"
	"droplet_console/internal/models"
)

type fakeSweeper struct {
	runs atomic.Int32
	res  droplets.SweepResult
	err  error
}

func (f *fakeSweeper) Sweep(ctx context.Context) (droplets.SweepResult, error) {
	f.runs.Add(1)
	return f.res, f.err
}

func TestRunOnceRecordsRepairs(t *testing.T) {
	gdb := dbtest.Open(t)
	role := models.Role{Name: "user", Permissions: "[]"}
	require.NoError(t, gdb.Create(&role).Error)
	u := models.User{Email: "owner@example.com", Name: "Owner", PasswordHash: "x", RoleID: role.ID, Status: models.UserActive}
	require.NoError(t, gdb.Create(&u).Error)
	row := models.Droplet{DOID: 4242, UserID: u.ID, Name: "orphan", Status: models.DropletActive}
	require.NoError(t, gdb.Create(&row).Error)

	sw := &fakeSweeper{
		res: droplets.SweepResult{Seen: 2, Repaired: 1, Mirrored: []models.Droplet{row}},
		err: errors.New("droplet 7: owner 9 not found"),
	}
	rec := activity.NewRecorder(gdb, zap.NewNop())
	New(sw, rec, zap.NewNop(), time.Minute).RunOnce()

	assert.EqualValues(t, 1, sw.runs.Load())
	page, err := rec.List(context.Background(), activity.Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, activity.SweepRepairedMirror, page.Items[0].Action)
	assert.Equal(t, u.ID, page.Items[0].UserID)
	require.NotNil(t, page.Items[0].DropletID)
	assert.Equal(t, row.ID, *page.Items[0].DropletID)
}

func TestStartRunsImmediately(t *testing.T) {
	sw := &fakeSweeper{}
	s := New(sw, nil, zap.NewNop(), time.Hour)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return sw.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestZeroIntervalDisables(t *testing.T) {
	sw := &fakeSweeper{}
	s := New(sw, nil, zap.NewNop(), 0)
	require.NoError(t, s.Start())
	s.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sw.runs.Load())
}
