package activity_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droplet_console/internal/activity"
	"droplet_console/internal/db/dbtest"
	"droplet_console/internal/models"
)

func TestRecordAndPage(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	rec := activity.NewRecorder(gdb, nil)

	role := models.Role{Name: "user", Permissions: "[]"}
	require.NoError(t, gdb.Create(&role).Error)
	alice := models.User{Email: "alice@example.com", RoleID: role.ID}
	bob := models.User{Email: "bob@example.com", RoleID: role.ID}
	require.NoError(t, gdb.Create(&alice).Error)
	require.NoError(t, gdb.Create(&bob).Error)

	dropletID := int64(7)
	for i := 0; i < 5; i++ {
		rec.Record(ctx, activity.Entry{
			UserID:    alice.ID,
			Action:    activity.DropletCreated,
			DropletID: &dropletID,
			Details:   map[string]any{"name": fmt.Sprintf("web-%d", i)},
			IP:        "127.0.0.1",
		})
	}
	rec.Record(ctx, activity.Entry{UserID: bob.ID, Action: activity.Login})

	page, err := rec.List(ctx, activity.Query{UserID: alice.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotNil(t, page.NextCursor)
	assert.Contains(t, string(page.Items[0].Details), "web-4")
	require.NotNil(t, page.Items[0].User)
	assert.Equal(t, "alice@example.com", page.Items[0].User.Email)

	seen := len(page.Items)
	for page.NextCursor != nil {
		page, err = rec.List(ctx, activity.Query{UserID: alice.ID, Limit: 2, AfterID: *page.NextCursor})
		require.NoError(t, err)
		seen += len(page.Items)
	}
	assert.Equal(t, 5, seen)

	page, err = rec.List(ctx, activity.Query{Search: "login"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, bob.ID, page.Items[0].UserID)
	assert.Nil(t, page.NextCursor)
}
