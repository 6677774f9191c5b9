// README: Job handlers: booking, bidding, lifecycle and disputes.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transferhub/internal/modules/eligibility"
	"transferhub/internal/modules/job"
	"transferhub/internal/modules/pricing"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

type JobHandler struct {
	jobs        *job.Service
	eligibility *eligibility.Service
}

func NewJobHandler(jobs *job.Service, elig *eligibility.Service) *JobHandler {
	return &JobHandler{jobs: jobs, eligibility: elig}
}

type createJobReq struct {
	Pickup      job.Address  `json:"pickup"`
	Dropoff     *job.Address `json:"dropoff"`
	BookedHours int          `json:"booked_hours"`
	DistanceKm  *float64     `json:"distance_km"`
	Category    string       `json:"category"`
	Passengers  int          `json:"passengers"`
	Luggage     int          `json:"luggage"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	Urgent      bool         `json:"urgent"`
}

// Create books a transfer for the caller. Jobs booked by an agency carry the
// agency as referring partner.
func (h *JobHandler) Create(c *gin.Context) {
	if !requireRole(c, user.RoleClient, user.RoleAgency) {
		return
	}
	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid, role := caller(c)
	cmd := job.CreateCommand{
		ClientID:    uid,
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		BookedHours: req.BookedHours,
		DistanceKm:  req.DistanceKm,
		Category:    pricing.Category(req.Category),
		Passengers:  req.Passengers,
		Luggage:     req.Luggage,
		ScheduledAt: req.ScheduledAt,
		Urgent:      req.Urgent,
	}
	if role == user.RoleAgency {
		cmd.PartnerID = &uid
	}
	j, err := h.jobs.Create(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, j)
}

func (h *JobHandler) List(c *gin.Context) {
	uid, _ := caller(c)
	jobs, err := h.eligibility.JobsFor(c.Request.Context(), uid)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	j, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	uid, role := caller(c)
	if (role == user.RoleClient || role == user.RoleAgency) && !ownsJob(j, uid) {
		writeError(c, http.StatusNotFound, job.ErrNotFound.Error())
		return
	}
	if role == user.RoleDriver {
		visible, err := h.eligibility.CanSee(c.Request.Context(), uid, j)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		if !visible {
			writeError(c, http.StatusNotFound, job.ErrNotFound.Error())
			return
		}
	}
	writeJSON(c, http.StatusOK, j)
}

// Events returns the audit trail; visible to the owner and admins.
func (h *JobHandler) Events(c *gin.Context) {
	j, ok := h.load(c)
	if !ok {
		return
	}
	uid, role := caller(c)
	if role != user.RoleAdmin && !ownsJob(j, uid) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	evs, err := h.jobs.Events(c.Request.Context(), j.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": evs})
}

type placeBidReq struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (h *JobHandler) PlaceBid(c *gin.Context) {
	if !requireRole(c, user.RoleDriver, user.RoleAgency) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req placeBidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid, _ := caller(c)
	b, err := h.jobs.PlaceBid(c.Request.Context(), job.PlaceBidCommand{
		JobID:    id,
		DriverID: uid,
		Amount:   types.FromFloat(req.Amount, req.Currency),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, b)
}

func (h *JobHandler) AcceptBid(c *gin.Context) {
	if !requireRole(c, user.RoleClient, user.RoleAgency, user.RoleAdmin) {
		return
	}
	bidID, ok := pathID(c, "bid_id")
	if !ok {
		return
	}
	j, ok := h.load(c)
	if !ok {
		return
	}
	uid, role := caller(c)
	if role != user.RoleAdmin && !ownsJob(j, uid) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	out, err := h.jobs.AcceptBid(c.Request.Context(), job.AcceptBidCommand{
		JobID:     j.ID,
		BidID:     bidID,
		ActorType: actorType(role),
		ActorID:   uid,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *JobHandler) Cancel(c *gin.Context) {
	j, ok := h.load(c)
	if !ok {
		return
	}
	uid, role := caller(c)
	if role != user.RoleAdmin && !ownsJob(j, uid) && !j.AssignedTo(uid) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	var req reasonReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	out, err := h.jobs.Cancel(c.Request.Context(), job.CancelCommand{
		JobID:     j.ID,
		ActorType: actorType(role),
		ActorID:   uid,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *JobHandler) MarkPaid(c *gin.Context) {
	if !requireRole(c, user.RoleAdmin) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.jobs.MarkPaid(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *JobHandler) Complete(c *gin.Context) {
	j, ok := h.load(c)
	if !ok {
		return
	}
	uid, role := caller(c)
	if role != user.RoleAdmin && !j.AssignedTo(uid) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	out, err := h.jobs.Complete(c.Request.Context(), job.CompleteCommand{
		JobID:     j.ID,
		ActorType: actorType(role),
		ActorID:   uid,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

type distanceReq struct {
	DistanceKm float64 `json:"distance_km"`
}

func (h *JobHandler) SetDistance(c *gin.Context) {
	if !requireRole(c, user.RoleAdmin) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req distanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	out, err := h.jobs.SetDistance(c.Request.Context(), job.SetDistanceCommand{JobID: id, DistanceKm: req.DistanceKm})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *JobHandler) OpenDispute(c *gin.Context) {
	j, ok := h.load(c)
	if !ok {
		return
	}
	uid, role := caller(c)
	if !ownsJob(j, uid) && !j.AssignedTo(uid) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	var req reasonReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	out, err := h.jobs.OpenDispute(c.Request.Context(), job.OpenDisputeCommand{
		JobID:     j.ID,
		ActorType: actorType(role),
		ActorID:   uid,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

type resolveReq struct {
	Resolution string `json:"resolution"`
	Note       string `json:"note"`
}

func (h *JobHandler) ResolveDispute(c *gin.Context) {
	if !requireRole(c, user.RoleAdmin) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req resolveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid, _ := caller(c)
	out, err := h.jobs.ResolveDispute(c.Request.Context(), job.ResolveDisputeCommand{
		JobID:      id,
		ArbiterID:  uid,
		Resolution: job.Resolution(req.Resolution),
		Note:       req.Note,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *JobHandler) Skip(c *gin.Context) {
	h.skip(c, true)
}

func (h *JobHandler) Unskip(c *gin.Context) {
	h.skip(c, false)
}

func (h *JobHandler) skip(c *gin.Context, add bool) {
	if !requireRole(c, user.RoleDriver) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	uid, _ := caller(c)
	var err error
	if add {
		err = h.eligibility.Skip(c.Request.Context(), uid, id)
	} else {
		err = h.eligibility.Unskip(c.Request.Context(), uid, id)
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// load fetches the job named by :id; on failure the response is already written.
func (h *JobHandler) load(c *gin.Context) (*job.Job, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	j, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	return j, true
}
