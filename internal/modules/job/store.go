// README: Job store contract and its PostgreSQL implementation (CAS on status + status_version).
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transferhub/internal/modules/pricing"
	"transferhub/internal/modules/settlement"
	"transferhub/internal/types"
)

// Transition is a conditional status change. It applies only if the job is
// still at From with the given StatusVersion.
type Transition struct {
	From         Status
	To           Status
	Version      int
	CancelReason *string
	CancelledBy  *types.ID
	Dispute      *Dispute
}

// Store persists jobs. Methods returning bool report whether a conditional
// write won; false means another writer got there first.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id types.ID) (*Job, error)
	List(ctx context.Context, f Filter) ([]*Job, error)
	// AppendBid adds b while the job is open. It reports whether this append
	// moved the job from pending to bidding.
	AppendBid(ctx context.Context, b Bid) (bool, error)
	Accept(ctx context.Context, id types.ID, from Status, version int, bid Bid) (bool, error)
	UpdateStatus(ctx context.Context, id types.ID, t Transition) (bool, error)
	MarkPaid(ctx context.Context, id types.ID) (bool, error)
	SetDistance(ctx context.Context, id types.ID, km float64, quote types.Money) (bool, error)
	// Complete flips accepted to completed and applies plan in the same unit of work.
	Complete(ctx context.Context, id types.ID, version int, plan settlement.Plan) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, id types.ID) ([]Event, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `
	id, client_id, pickup_label, pickup_lat, pickup_lng,
	dropoff_label, dropoff_lat, dropoff_lng, booked_hours, distance_km,
	category, passengers, luggage, scheduled_at, urgent,
	status, status_version, selected_bid_id, price, currency,
	driver_id, driver_name, payment_status, partner_id, quoted_price,
	created_at, accepted_at, paid_at, completed_at, cancelled_at,
	cancel_reason, cancelled_by, dispute`

func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	var dLabel *string
	var dLat, dLng *float64
	if j.Dropoff != nil {
		dLabel, dLat, dLng = &j.Dropoff.Label, &j.Dropoff.Point.Lat, &j.Dropoff.Point.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO jobs (
			id, client_id, pickup_label, pickup_lat, pickup_lng,
			dropoff_label, dropoff_lat, dropoff_lng, booked_hours, distance_km,
			category, passengers, luggage, scheduled_at, urgent,
			status, status_version, currency, payment_status, partner_id,
			quoted_price, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22
		)`,
		string(j.ID), string(j.ClientID), j.Pickup.Label, j.Pickup.Point.Lat, j.Pickup.Point.Lng,
		dLabel, dLat, dLng, j.BookedHours, j.DistanceKm,
		string(j.Category), j.Passengers, j.Luggage, j.ScheduledAt, j.Urgent,
		string(j.Status), j.StatusVersion, j.QuotedPrice.Currency, string(j.Payment), idString(j.PartnerID),
		j.QuotedPrice.Amount, j.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Job, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	bids, err := s.bidsFor(ctx, []string{string(id)})
	if err != nil {
		return nil, err
	}
	j.Bids = bids[j.ID]
	return j, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE TRUE`
	args := []any{}
	if f.ClientID != nil {
		args = append(args, string(*f.ClientID))
		query += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if f.DriverID != nil {
		args = append(args, string(*f.DriverID))
		query += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var (
		jobs []*Job
		ids  []string
	)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, j)
		ids = append(ids, string(j.ID))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return jobs, nil
	}
	bids, err := s.bidsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		j.Bids = bids[j.ID]
	}
	return jobs, nil
}

func (s *PostgresStore) AppendBid(ctx context.Context, b Bid) (bool, error) {
	advanced := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var status Status
		// Row lock serializes bids against accept/cancel on the same job.
		if err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, string(b.JobID)).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if status != StatusPending && status != StatusBidding {
			return ErrInvalidState
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_bids (id, job_id, driver_id, driver_name, amount, currency, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(b.ID), string(b.JobID), string(b.DriverID), b.DriverName, b.Amount.Amount, b.Amount.Currency, b.CreatedAt,
		); err != nil {
			return err
		}
		if status == StatusPending {
			if _, err := tx.Exec(ctx, `
				UPDATE jobs SET status = 'bidding', status_version = status_version + 1
				WHERE id = $1`, string(b.JobID)); err != nil {
				return err
			}
			advanced = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return advanced, nil
}

func (s *PostgresStore) Accept(ctx context.Context, id types.ID, from Status, version int, bid Bid) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'accepted',
			status_version = status_version + 1,
			selected_bid_id = $1,
			price = $2,
			currency = $3,
			driver_id = $4,
			driver_name = $5,
			accepted_at = NOW()
		WHERE id = $6 AND status = $7 AND status_version = $8
		  AND status IN ('pending', 'bidding') AND selected_bid_id IS NULL`,
		string(bid.ID), bid.Amount.Amount, bid.Amount.Currency, string(bid.DriverID), bid.DriverName,
		string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id types.ID, t Transition) (bool, error) {
	var dispute []byte
	if t.Dispute != nil {
		b, err := json.Marshal(t.Dispute)
		if err != nil {
			return false, err
		}
		dispute = b
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = $1,
			status_version = status_version + 1,
			cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
			cancel_reason = COALESCE($2, cancel_reason),
			cancelled_by = COALESCE($3, cancelled_by),
			dispute = COALESCE($4::jsonb, dispute)
		WHERE id = $5 AND status = $6 AND status_version = $7`,
		string(t.To), t.CancelReason, idString(t.CancelledBy), dispute,
		string(id), string(t.From), t.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkPaid(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs SET payment_status = 'paid', paid_at = NOW()
		WHERE id = $1 AND payment_status <> 'paid'
		  AND status IN ('accepted', 'completed', 'disputed')`, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetDistance(ctx context.Context, id types.ID, km float64, quote types.Money) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs SET distance_km = $1, quoted_price = $2
		WHERE id = $3 AND status IN ('pending', 'bidding')`,
		km, quote.Amount, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id types.ID, version int, plan settlement.Plan) (bool, error) {
	won := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE jobs
			SET status = 'completed',
				status_version = status_version + 1,
				completed_at = NOW()
			WHERE id = $1 AND status = 'accepted' AND status_version = $2
			  AND payment_status = 'paid'`,
			string(id), version,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		if err := settlement.ApplyTx(ctx, tx, plan); err != nil {
			return fmt.Errorf("settle job %s: %w", id, err)
		}
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO job_state_events (
			job_id, from_status, to_status, actor_type, actor_id, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.JobID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idString(e.ActorID),
		e.Note,
		e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, from_status, to_status, actor_type, actor_id, note, created_at
		FROM job_state_events WHERE job_id = $1 ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			e       Event
			actorID *string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = toID(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) bidsFor(ctx context.Context, jobIDs []string) (map[types.ID][]Bid, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, driver_id, driver_name, amount, currency, created_at
		FROM job_bids WHERE job_id = ANY($1)
		ORDER BY created_at, id`, jobIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[types.ID][]Bid)
	for rows.Next() {
		var b Bid
		if err := rows.Scan(&b.ID, &b.JobID, &b.DriverID, &b.DriverName, &b.Amount.Amount, &b.Amount.Currency, &b.CreatedAt); err != nil {
			return nil, err
		}
		out[b.JobID] = append(out[b.JobID], b)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j                                Job
		category                         string
		dLabel                           *string
		dLat, dLng                       *float64
		selectedBid, driverID, partnerID *string
		cancelledBy                      *string
		price                            *int64
		currency                         string
		dispute                          []byte
	)
	err := row.Scan(
		&j.ID, &j.ClientID, &j.Pickup.Label, &j.Pickup.Point.Lat, &j.Pickup.Point.Lng,
		&dLabel, &dLat, &dLng, &j.BookedHours, &j.DistanceKm,
		&category, &j.Passengers, &j.Luggage, &j.ScheduledAt, &j.Urgent,
		&j.Status, &j.StatusVersion, &selectedBid, &price, &currency,
		&driverID, &j.DriverName, &j.Payment, &partnerID, &j.QuotedPrice.Amount,
		&j.CreatedAt, &j.AcceptedAt, &j.PaidAt, &j.CompletedAt, &j.CancelledAt,
		&j.CancelReason, &cancelledBy, &dispute,
	)
	if err != nil {
		return nil, err
	}
	j.Category = pricing.Category(category)
	j.QuotedPrice.Currency = currency
	if dLat != nil && dLng != nil {
		j.Dropoff = &Address{Point: types.Point{Lat: *dLat, Lng: *dLng}}
		if dLabel != nil {
			j.Dropoff.Label = *dLabel
		}
	}
	if price != nil {
		j.Price = &types.Money{Amount: *price, Currency: currency}
	}
	j.SelectedBidID = toID(selectedBid)
	j.DriverID = toID(driverID)
	j.PartnerID = toID(partnerID)
	j.CancelledBy = toID(cancelledBy)
	if len(dispute) > 0 {
		var d Dispute
		if err := json.Unmarshal(dispute, &d); err != nil {
			return nil, fmt.Errorf("decode dispute for job %s: %w", j.ID, err)
		}
		j.Dispute = &d
	}
	return &j, nil
}

func idString(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toID(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
