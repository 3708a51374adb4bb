package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/auth"
	"outreach-platform/internal/callqueue"
	"outreach-platform/internal/locations"
	"outreach-platform/internal/reports"
	"outreach-platform/pkg/logger"
	"outreach-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Queue   *callqueue.Service
	Dir     locations.Directory
	Reports reports.Repository
	Stats   *reports.StatsService
	Audit   *audit.Service

	// Cache plus ClaimCap bound how many unreported claims one caller may
	// hold at once. Nil client or zero cap disables the check.
	Cache       *redis.Client
	ClaimCap    int
	ClaimCapTTL time.Duration
}

// --- Auth ---

type loginRequest struct {
	ReporterID string `json:"reporter_id"`
	Role       string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate
// credentials against the identity provider.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ReporterID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reporter_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.ReporterID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Caller flow ---

// assignedRequestView is the caller-facing shape of a claimed request:
// the queue row joined with the directory fields a caller needs to make
// the call. Internal ids never leave the API; locations travel by
// public id.
type assignedRequestView struct {
	ID         int64  `json:"id"`
	LocationID string `json:"location_id"`

	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	FullAddress string `json:"full_address,omitempty"`
	State       string `json:"state"`

	LatestReportAt *time.Time `json:"latest_report_at,omitempty"`
	ReportCount    int        `json:"report_count"`

	PriorityGroup string     `json:"priority_group"`
	VestingAt     time.Time  `json:"vesting_at"`
	ClaimedUntil  *time.Time `json:"claimed_until,omitempty"`
}

func (h Handlers) viewOf(c *gin.Context, r callqueue.CallRequest) (assignedRequestView, error) {
	loc, err := h.Dir.Get(c.Request.Context(), r.LocationID)
	if err != nil {
		return assignedRequestView{}, err
	}
	return assignedRequestView{
		ID:             r.ID,
		LocationID:     loc.PublicID,
		Name:           loc.Name,
		PhoneNumber:    loc.PhoneNumber,
		FullAddress:    loc.FullAddress,
		State:          loc.State,
		LatestReportAt: loc.LatestReportAt,
		ReportCount:    loc.ReportCount,
		PriorityGroup:  r.PriorityGroup.String(),
		VestingAt:      r.VestingAt,
		ClaimedUntil:   r.ClaimedUntil,
	}, nil
}

func claimCapKey(reporterID string) string { return "claim_cap:" + reporterID }

// RequestCall hands the authenticated caller their next assignment.
//
// Query parameters:
//   - state: two-letter filter, defaults to "CA"; "all" disables it
//   - q: location name substring filter
//   - location_id: public id override, bypasses queue selection
//   - no_claim: return the head of the queue without leasing it
func (h Handlers) RequestCall(c *gin.Context) {
	reporterID, err := auth.ReporterID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "reporter_id required"})
		return
	}

	noClaim, _ := strconv.ParseBool(c.Query("no_claim"))
	claimFor := reporterID
	if noClaim {
		claimFor = ""
	}

	if claimFor != "" && h.Cache != nil && h.ClaimCap > 0 {
		ok, err := utils.AcquireConcurrencyCap(c.Request.Context(), h.Cache, claimCapKey(reporterID), h.ClaimCap, h.ClaimCapTTL)
		if err != nil {
			logger.FromGin(c).Warn("claim cap check failed", "err", err)
		} else if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many unreported calls"})
			return
		}
	}

	var r *callqueue.CallRequest
	if publicID := c.Query("location_id"); publicID != "" {
		loc, err := h.Dir.GetByPublicID(c.Request.Context(), publicID)
		if errors.Is(err, locations.ErrNotFound) {
			h.releaseClaimSlot(c, claimFor)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "location not found"})
			return
		}
		if err == nil {
			r, err = h.Queue.NextForLocation(c.Request.Context(), claimFor, loc.ID)
		}
		if err != nil {
			h.releaseClaimSlot(c, claimFor)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
			return
		}
	} else {
		f := callqueue.Filter{State: "CA", NameContains: c.Query("q")}
		if s := c.Query("state"); s != "" {
			f.State = s
		}
		if f.State == "all" {
			f.State = ""
		}
		r, err = h.Queue.Next(c.Request.Context(), claimFor, f)
		if err != nil {
			h.releaseClaimSlot(c, claimFor)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
			return
		}
	}

	if r == nil {
		h.releaseClaimSlot(c, claimFor)
		c.JSON(http.StatusNotFound, gin.H{"error": "no locations to call"})
		return
	}

	view, err := h.viewOf(c, *r)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "location lookup failed"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// releaseClaimSlot frees a cap slot acquired for a claim that produced
// nothing to report on.
func (h Handlers) releaseClaimSlot(c *gin.Context, claimFor string) {
	if claimFor == "" || h.Cache == nil || h.ClaimCap <= 0 {
		return
	}
	if err := utils.ReleaseConcurrencyCap(c.Request.Context(), h.Cache, claimCapKey(claimFor)); err != nil {
		logger.FromGin(c).Warn("claim cap release failed", "err", err)
	}
}

type submitReportRequest struct {
	LocationID       string     `json:"location_id"`
	AvailabilityTags []string   `json:"availability_tags"`
	PublicNotes      string     `json:"public_notes"`
	InternalNotes    string     `json:"internal_notes"`
	DoNotCallUntil   *time.Time `json:"do_not_call_until"`
}

// SubmitReport persists a call report and reconciles it against the
// caller's outstanding claims for the location.
func (h Handlers) SubmitReport(c *gin.Context) {
	reporterID, err := auth.ReporterID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "reporter_id required"})
		return
	}

	var req submitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.LocationID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "location_id required"})
		return
	}

	loc, err := h.Dir.GetByPublicID(c.Request.Context(), req.LocationID)
	if errors.Is(err, locations.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "location not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "location lookup failed"})
		return
	}

	now := time.Now().UTC()
	rep := reports.Report{
		ID:               uuid.NewString(),
		LocationID:       loc.ID,
		ReporterID:       reporterID,
		CreatedAt:        now,
		AvailabilityTags: req.AvailabilityTags,
		PublicNotes:      req.PublicNotes,
		InternalNotes:    req.InternalNotes,
		DoNotCallUntil:   req.DoNotCallUntil,
	}
	if err := h.Reports.Insert(c.Request.Context(), rep); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report insert failed"})
		return
	}
	if err := h.Dir.RecordReport(c.Request.Context(), loc.ID, now); err != nil {
		logger.FromGin(c).Warn("report denormalization failed", "location_id", loc.ID, "err", err)
	}

	ref := callqueue.ReportRef{
		ReportID:   rep.ID,
		LocationID: loc.ID,
		ReporterID: reporterID,
	}
	// A call-back time only re-queues when the caller marked the call as
	// a skip; stray timestamps from the client are ignored otherwise.
	if rep.RequestedSkip() && rep.DoNotCallUntil != nil {
		ref.CallBackAt = rep.DoNotCallUntil
	}
	done, err := h.Queue.CompleteForReport(c.Request.Context(), ref)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "queue reconciliation failed"})
		return
	}

	if h.Stats != nil {
		h.Stats.Invalidate(c.Request.Context(), reporterID)
	}
	if len(done.Completed) > 0 {
		h.releaseClaimSlot(c, reporterID)
	}

	resp := gin.H{"report_id": rep.ID, "completed": len(done.Completed)}
	if done.Requeued != nil {
		resp["requeued_id"] = done.Requeued.ID
		resp["requeued_vesting_at"] = done.Requeued.VestingAt
	}
	c.JSON(http.StatusCreated, resp)
}

// CallerStats returns the authenticated caller's report counts.
func (h Handlers) CallerStats(c *gin.Context) {
	reporterID, err := auth.ReporterID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "reporter_id required"})
		return
	}
	stats, err := h.Stats.CallerStats(c.Request.Context(), reporterID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats lookup failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// --- Admin ---

type adminEnqueueRequest struct {
	LocationIDs   []string `json:"location_ids"`
	Reason        string   `json:"reason"`
	PriorityGroup int      `json:"priority_group"`
	Priority      int      `json:"priority"`
}

// AdminEnqueue queues a batch of locations by public id.
// RBAC: admin or super_admin.
func (h Handlers) AdminEnqueue(c *gin.Context) {
	var req adminEnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.LocationIDs) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "location_ids required"})
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = callqueue.ReasonNewLocation
	}

	ids := make([]int64, 0, len(req.LocationIDs))
	for _, pid := range req.LocationIDs {
		loc, err := h.Dir.GetByPublicID(c.Request.Context(), pid)
		if errors.Is(err, locations.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "location not found: " + pid})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "location lookup failed"})
			return
		}
		ids = append(ids, loc.ID)
	}

	created, err := h.Queue.Enqueue(c.Request.Context(), ids, reason,
		callqueue.PriorityGroup(req.PriorityGroup), req.Priority)
	if errors.Is(err, callqueue.ErrInvalidArgument) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid priority group"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	h.logQueueMutation(c, "admin enqueue", strconv.Itoa(len(created))+" created")
	c.JSON(http.StatusCreated, gin.H{"created": len(created)})
}

type adminBulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// AdminBulkDelete removes queue rows by id. Maintenance only.
// RBAC: admin or super_admin.
func (h Handlers) AdminBulkDelete(c *gin.Context) {
	var req adminBulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.IDs) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ids required"})
		return
	}
	n, err := h.Queue.BulkDelete(c.Request.Context(), req.IDs)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.logQueueMutation(c, "admin bulk delete", strconv.FormatInt(n, 10)+" deleted")
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// AdminLocationFlags applies outreach flag changes to a location and
// prunes its incomplete queue rows when the change makes it ineligible.
// RBAC: admin or super_admin.
func (h Handlers) AdminLocationFlags(c *gin.Context) {
	publicID := c.Param("public_id")
	if publicID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "public_id required"})
		return
	}

	var flags locations.OutreachFlags
	if err := c.ShouldBindJSON(&flags); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	loc, err := h.Dir.GetByPublicID(c.Request.Context(), publicID)
	if errors.Is(err, locations.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "location not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "location lookup failed"})
		return
	}

	updated, err := h.Dir.SetOutreachFlags(c.Request.Context(), loc.ID, flags)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "flag update failed"})
		return
	}
	pruned, err := h.Queue.SyncLocation(c.Request.Context(), loc.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "queue sync failed"})
		return
	}

	if h.Audit != nil {
		actorID, _ := auth.ReporterID(c.Request.Context())
		actorRole, _ := auth.Role(c.Request.Context())
		if err := h.Audit.LogAdminAction(c.Request.Context(), actorID, actorRole, c.ClientIP(),
			"outreach flags changed", loc.ID, ""); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"location": updated, "pruned": pruned})
}

func (h Handlers) logQueueMutation(c *gin.Context, message, detail string) {
	if h.Audit == nil {
		return
	}
	actorID, _ := auth.ReporterID(c.Request.Context())
	actorRole, _ := auth.Role(c.Request.Context())
	if err := h.Audit.LogQueueMutation(c.Request.Context(), actorID, actorRole, c.ClientIP(), message, detail); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}
