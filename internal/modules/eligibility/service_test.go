package eligibility

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferhub/internal/modules/geozone"
	"transferhub/internal/modules/job"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

func seed(t *testing.T) (*Service, *job.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	users := user.NewMemoryDirectory()
	for _, u := range []*user.User{
		{ID: "c1", Role: user.RoleClient},
		{ID: "c2", Role: user.RoleClient},
		{ID: "admin", Role: user.RoleAdmin},
		{ID: "agency", Role: user.RoleAgency},
		{ID: "d1", Role: user.RoleDriver, Vehicles: []user.Vehicle{{Category: "economy", MaxPassengers: 3}}, Zones: []geozone.Zone{zoneZ}},
	} {
		require.NoError(t, users.Upsert(ctx, u))
	}
	store := job.NewMemoryStore(nil)
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	partner := types.ID("agency")
	for i, j := range []*job.Job{
		{ID: "j1", ClientID: "c1", Status: job.StatusPending, Passengers: 4, Pickup: job.Address{Point: insideZ}},
		{ID: "j2", ClientID: "c1", Status: job.StatusPending, Passengers: 3, Pickup: job.Address{Point: insideZ}, PartnerID: &partner},
		{ID: "j3", ClientID: "c2", Status: job.StatusPending, Passengers: 2, Pickup: job.Address{Point: outsideZ}},
		{ID: "j4", ClientID: "c2", Status: job.StatusBidding, Passengers: 1, Pickup: job.Address{Point: insideZ}},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Create(ctx, j))
	}
	return NewService(store, users, NewMemorySkipStore(), nil), store
}

func jobIDs(jobs []*job.Job) []types.ID {
	out := make([]types.ID, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestJobsForByRole(t *testing.T) {
	ctx := context.Background()
	svc, _ := seed(t)

	cases := []struct {
		viewer types.ID
		want   []types.ID
	}{
		{"admin", []types.ID{"j4", "j3", "j2", "j1"}},
		{"c1", []types.ID{"j2", "j1"}},
		{"agency", []types.ID{"j2"}},
		// j1 exceeds capacity, j3 is outside the zone
		{"d1", []types.ID{"j4", "j2"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.viewer), func(t *testing.T) {
			got, err := svc.JobsFor(ctx, tc.viewer)
			require.NoError(t, err)
			assert.Equal(t, tc.want, jobIDs(got))
		})
	}

	_, err := svc.JobsFor(ctx, "ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSkipAndUnskip(t *testing.T) {
	ctx := context.Background()
	svc, _ := seed(t)

	require.NoError(t, svc.Skip(ctx, "d1", "j4"))
	got, err := svc.JobsFor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"j2"}, jobIDs(got))

	require.NoError(t, svc.Unskip(ctx, "d1", "j4"))
	got, err = svc.JobsFor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"j4", "j2"}, jobIDs(got))

	assert.ErrorIs(t, svc.Skip(ctx, "d1", "missing"), types.ErrNotFound)
	assert.ErrorIs(t, svc.Skip(ctx, "", "j4"), types.ErrValidation)
}

func TestCanSee(t *testing.T) {
	ctx := context.Background()
	svc, store := seed(t)
	get := func(id types.ID) *job.Job {
		j, err := store.Get(ctx, id)
		require.NoError(t, err)
		return j
	}

	cases := []struct {
		viewer types.ID
		job    types.ID
		want   bool
	}{
		{"d1", "j4", true},
		{"d1", "j1", false},
		{"d1", "j3", false},
		{"admin", "j3", true},
		{"c2", "j1", true},
	}
	for _, tc := range cases {
		ok, err := svc.CanSee(ctx, tc.viewer, get(tc.job))
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s on %s", tc.viewer, tc.job)
	}

	require.NoError(t, svc.Skip(ctx, "d1", "j4"))
	ok, err := svc.CanSee(ctx, "d1", get("j4"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.CanSee(ctx, "ghost", get("j4"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRedisSkipStore(t *testing.T) {
	addr := os.Getenv("TH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TH_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	driver := types.ID("redis_test_" + types.NewID().String())
	t.Cleanup(func() { client.Del(ctx, skipKey(driver)) })

	store := NewRedisSkipStore(client)
	empty, err := store.List(ctx, driver)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Add(ctx, driver, "b"))
	require.NoError(t, store.Add(ctx, driver, "a"))
	require.NoError(t, store.Add(ctx, driver, "a"))
	got, err := store.List(ctx, driver)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"a", "b"}, got)

	ttl, err := client.TTL(ctx, skipKey(driver)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Remove(ctx, driver, "a"))
	got, err = store.List(ctx, driver)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"b"}, got)
}
