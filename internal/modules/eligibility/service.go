// README: Eligibility service resolves the viewer's role and returns the jobs they may see.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"

	"transferhub/internal/modules/job"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

var ErrBadRequest = fmt.Errorf("eligibility: %w", types.ErrValidation)

type JobLister interface {
	Get(ctx context.Context, id types.ID) (*job.Job, error)
	List(ctx context.Context, f job.Filter) ([]*job.Job, error)
}

// SkipStore holds the jobs each driver dismissed.
type SkipStore interface {
	Add(ctx context.Context, driverID, jobID types.ID) error
	Remove(ctx context.Context, driverID, jobID types.ID) error
	List(ctx context.Context, driverID types.ID) ([]types.ID, error)
}

type Service struct {
	jobs   JobLister
	users  user.Directory
	skips  SkipStore
	logger *slog.Logger
}

func NewService(jobs JobLister, users user.Directory, skips SkipStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, users: users, skips: skips, logger: logger}
}

// JobsFor returns what viewerID may see: admins everything, clients and
// agencies their own and referred jobs, drivers the eligible subset.
func (s *Service) JobsFor(ctx context.Context, viewerID types.ID) ([]*job.Job, error) {
	viewer, err := s.users.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	switch viewer.Role {
	case user.RoleAdmin:
		return s.jobs.List(ctx, job.Filter{})
	case user.RoleClient:
		return s.jobs.List(ctx, job.Filter{ClientID: &viewer.ID})
	case user.RoleAgency:
		all, err := s.jobs.List(ctx, job.Filter{})
		if err != nil {
			return nil, err
		}
		out := make([]*job.Job, 0, len(all))
		for _, j := range all {
			if j.ClientID == viewer.ID || (j.PartnerID != nil && *j.PartnerID == viewer.ID) {
				out = append(out, j)
			}
		}
		return out, nil
	case user.RoleDriver:
		profile, err := s.Profile(ctx, viewer)
		if err != nil {
			return nil, err
		}
		all, err := s.jobs.List(ctx, job.Filter{})
		if err != nil {
			return nil, err
		}
		return VisibleJobs(profile, all), nil
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrBadRequest, viewer.Role)
	}
}

// CanSee reports whether a driver may view j. Non-drivers are not judged here.
func (s *Service) CanSee(ctx context.Context, viewerID types.ID, j *job.Job) (bool, error) {
	viewer, err := s.users.Get(ctx, viewerID)
	if err != nil {
		return false, err
	}
	if viewer.Role != user.RoleDriver {
		return true, nil
	}
	profile, err := s.Profile(ctx, viewer)
	if err != nil {
		return false, err
	}
	return Visible(profile, j), nil
}

func (s *Service) Profile(ctx context.Context, driver *user.User) (Profile, error) {
	skipped, err := s.skips.List(ctx, driver.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("load skip-list for %s: %w", driver.ID, err)
	}
	return ProfileFor(driver, skipped), nil
}

func (s *Service) Skip(ctx context.Context, driverID, jobID types.ID) error {
	if driverID == "" || jobID == "" {
		return fmt.Errorf("%w: driver and job are required", ErrBadRequest)
	}
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return err
	}
	if err := s.skips.Add(ctx, driverID, jobID); err != nil {
		return err
	}
	s.logger.Info("job skipped", slog.String("driver_id", string(driverID)), slog.String("job_id", string(jobID)))
	return nil
}

func (s *Service) Unskip(ctx context.Context, driverID, jobID types.ID) error {
	if driverID == "" || jobID == "" {
		return fmt.Errorf("%w: driver and job are required", ErrBadRequest)
	}
	return s.skips.Remove(ctx, driverID, jobID)
}
