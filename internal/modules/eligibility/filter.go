// README: Driver visibility rules: assignment, bids, capacity, zones and skip-list.
package eligibility

import (
	"transferhub/internal/modules/geozone"
	"transferhub/internal/modules/job"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

// Profile is the derived view of a driver that visibility depends on.
type Profile struct {
	DriverID types.ID
	// Capacity is the largest passenger count across the driver's vehicles.
	Capacity int
	Zones    []geozone.Zone
	Skipped  map[types.ID]struct{}
}

func ProfileFor(u *user.User, skipped []types.ID) Profile {
	p := Profile{
		DriverID: u.ID,
		Capacity: u.MaxCapacity(),
		Zones:    u.Zones,
		Skipped:  make(map[types.ID]struct{}, len(skipped)),
	}
	for _, id := range skipped {
		p.Skipped[id] = struct{}{}
	}
	return p
}

// Visible applies the rules in order; the first matching rule decides.
func Visible(p Profile, j *job.Job) bool {
	if j.AssignedTo(p.DriverID) {
		return true
	}
	if j.Status == job.StatusCancelled {
		return false
	}
	if j.HasBidFrom(p.DriverID) {
		return true
	}
	if !j.IsOpen() {
		return false
	}
	if j.Passengers > p.Capacity {
		return false
	}
	if !geozone.AnyContains(p.Zones, j.Pickup.Point) {
		return false
	}
	_, skipped := p.Skipped[j.ID]
	return !skipped
}

// VisibleJobs keeps the input order.
func VisibleJobs(p Profile, jobs []*job.Job) []*job.Job {
	out := make([]*job.Job, 0, len(jobs))
	for _, j := range jobs {
		if Visible(p, j) {
			out = append(out, j)
		}
	}
	return out
}
