package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

func TestNotificationNeedsExactlyOneTarget(t *testing.T) {
	cases := []struct {
		name string
		n    Notification
		ok   bool
	}{
		{"user", ToUser("d1", "Bid accepted", "", SeveritySuccess), true},
		{"role", ToRole(user.RoleAdmin, "Job accepted", "", SeverityInfo), true},
		{"none", Notification{Title: "x"}, false},
		{"both", Notification{UserID: "d1", Role: user.RoleAdmin}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.n.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, types.ErrValidation)
			}
		})
	}
}

func TestMemorySinkRecords(t *testing.T) {
	var s MemorySink
	require.NoError(t, s.Notify(context.Background(), ToUser("d1", "hi", "there", SeverityInfo)))
	require.Error(t, s.Notify(context.Background(), Notification{}))
	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, types.ID("d1"), sent[0].UserID)
	assert.Equal(t, "role_driver", RoleTopic(user.RoleDriver))
}

func TestRecipients(t *testing.T) {
	ctx := context.Background()
	users := user.NewMemoryDirectory()
	for _, u := range []*user.User{
		{ID: "a1", Role: user.RoleAdmin, Status: user.StatusActive},
		{ID: "a2", Role: user.RoleAdmin, Status: user.StatusSuspended},
		{ID: "a3", Role: user.RoleAdmin, Status: user.StatusActive},
		{ID: "d1", Role: user.RoleDriver, Status: user.StatusActive},
	} {
		require.NoError(t, users.Upsert(ctx, u))
	}

	got, err := Recipients(ctx, users, ToRole(user.RoleAdmin, "Job accepted", "", SeverityInfo))
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"a1", "a3"}, got)

	got, err = Recipients(ctx, users, ToUser("d1", "Bid accepted", "", SeveritySuccess))
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"d1"}, got)

	_, err = Recipients(ctx, users, Notification{})
	assert.ErrorIs(t, err, types.ErrValidation)
}
