package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/auth"
	"outreach-platform/internal/callqueue"
	"outreach-platform/internal/config"
	"outreach-platform/internal/locations"
	"outreach-platform/internal/reports"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	router *gin.Engine
	h      Handlers

	dir       *locations.MemoryDirectory
	queueRepo *callqueue.MemoryRepo
	reports   *reports.MemoryRepo
	audit     *audit.MemoryRepo
}

// newTestEnv wires the handlers against memory stores, with a stub auth
// middleware injecting the given identity.
func newTestEnv(t *testing.T, reporterID, role string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := locations.NewMemoryDirectory(locations.DefaultEligibility())
	queueRepo := callqueue.NewMemoryRepo(dir)
	repRepo := reports.NewMemoryRepo()
	auditRepo := audit.NewMemoryRepo()

	h := Handlers{
		Queue:   callqueue.NewService(queueRepo, dir, callqueue.Options{Links: repRepo}),
		Dir:     dir,
		Reports: repRepo,
		Stats:   reports.NewStatsService(repRepo, nil),
		Audit:   audit.NewService(auditRepo),
	}

	r := gin.New()
	g := r.Group("", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), reporterID, role))
		c.Next()
	})
	g.POST("/caller/request-call", h.RequestCall)
	g.POST("/caller/report", h.SubmitReport)
	g.GET("/caller/stats", h.CallerStats)
	g.POST("/admin/call-requests", h.AdminEnqueue)
	g.DELETE("/admin/call-requests", h.AdminBulkDelete)
	g.POST("/admin/locations/:public_id/flags", h.AdminLocationFlags)

	return &testEnv{router: r, h: h, dir: dir, queueRepo: queueRepo, reports: repRepo, audit: auditRepo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (e *testEnv) seedClaimable(t *testing.T, l locations.Location) locations.Location {
	t.Helper()
	if l.Name == "" {
		l.Name = "Safeway Pharmacy"
	}
	if l.PhoneNumber == "" {
		l.PhoneNumber = "(555) 555-0100"
	}
	if l.State == "" {
		l.State = "CA"
	}
	loc := e.dir.Add(l)
	e.queueRepo.Seed(callqueue.CallRequest{
		LocationID:    loc.ID,
		VestingAt:     time.Now().UTC().Add(-time.Minute),
		PriorityGroup: callqueue.GroupNormal,
		Reason:        callqueue.ReasonNewLocation,
	})
	return loc
}

func TestRequestCall_ClaimsAndRendersLocation(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	loc := env.seedClaimable(t, locations.Location{})

	w, body := env.do(t, http.MethodPost, "/caller/request-call", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["location_id"] != loc.PublicID {
		t.Fatalf("expected public id %q, got %v", loc.PublicID, body["location_id"])
	}
	if body["phone_number"] != loc.PhoneNumber {
		t.Fatalf("phone missing: %v", body)
	}
	if body["claimed_until"] == nil {
		t.Fatalf("claim should carry a lease")
	}
}

func TestRequestCall_EmptyQueue(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	w, body := env.do(t, http.MethodPost, "/caller/request-call", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
	if body["error"] != "no locations to call" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestRequestCall_StateDefaultsToCA(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	env.seedClaimable(t, locations.Location{State: "OR"})

	if w, _ := env.do(t, http.MethodPost, "/caller/request-call", nil); w.Code != http.StatusNotFound {
		t.Fatalf("default CA filter should hide OR, got %d", w.Code)
	}
	if w, _ := env.do(t, http.MethodPost, "/caller/request-call?state=OR", nil); w.Code != http.StatusOK {
		t.Fatalf("explicit state should match, got %d", w.Code)
	}
}

func TestRequestCall_StateAllDisablesFilter(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	env.seedClaimable(t, locations.Location{State: "TX"})

	w, _ := env.do(t, http.MethodPost, "/caller/request-call?state=all", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("state=all should match any state, got %d", w.Code)
	}
}

func TestRequestCall_NoClaimPeeks(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	env.seedClaimable(t, locations.Location{})

	w, body := env.do(t, http.MethodPost, "/caller/request-call?no_claim=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if body["claimed_until"] != nil {
		t.Fatalf("no_claim must not lease: %v", body)
	}

	// Still claimable afterwards.
	if w, _ := env.do(t, http.MethodPost, "/caller/request-call", nil); w.Code != http.StatusOK {
		t.Fatalf("peeked request should remain claimable, got %d", w.Code)
	}
}

func TestRequestCall_LocationOverride(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	// No queue row seeded; the override creates one on the fly.
	loc := env.dir.Add(locations.Location{Name: "Target Pharmacy", PhoneNumber: "(555) 555-0101", State: "NY"})

	w, body := env.do(t, http.MethodPost, "/caller/request-call?location_id="+loc.PublicID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["location_id"] != loc.PublicID {
		t.Fatalf("override returned wrong location: %v", body)
	}
}

func TestRequestCall_LocationOverrideUnknown(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	w, _ := env.do(t, http.MethodPost, "/caller/request-call?location_id=nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestSubmitReport_CompletesClaim(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	loc := env.seedClaimable(t, locations.Location{})

	if w, _ := env.do(t, http.MethodPost, "/caller/request-call", nil); w.Code != http.StatusOK {
		t.Fatalf("claim failed")
	}

	w, body := env.do(t, http.MethodPost, "/caller/report", map[string]any{
		"location_id":       loc.PublicID,
		"availability_tags": []string{"yes_walkins_accepted"},
		"public_notes":      "friendly pharmacist",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["completed"].(float64) != 1 {
		t.Fatalf("expected 1 completion: %v", body)
	}
	if body["requeued_id"] != nil {
		t.Fatalf("no skip requested: %v", body)
	}

	// Report persisted and back-linked.
	rep, err := env.reports.Get(context.Background(), body["report_id"].(string))
	if err != nil {
		t.Fatalf("report not stored: %v", err)
	}
	if rep.CallRequestID == nil {
		t.Fatalf("report not linked to the completed request")
	}

	// Denormalized fields bumped.
	got, _ := env.dir.Get(context.Background(), loc.ID)
	if got.ReportCount != 1 || got.LatestReportAt == nil {
		t.Fatalf("denormalization not updated: %+v", got)
	}
}

func TestSubmitReport_SkipRequeues(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	loc := env.seedClaimable(t, locations.Location{})

	if w, _ := env.do(t, http.MethodPost, "/caller/request-call", nil); w.Code != http.StatusOK {
		t.Fatalf("claim failed")
	}

	callBack := time.Now().UTC().Add(6 * time.Hour)
	w, body := env.do(t, http.MethodPost, "/caller/report", map[string]any{
		"location_id":       loc.PublicID,
		"availability_tags": []string{reports.TagSkipCallBackLater},
		"do_not_call_until": callBack,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["requeued_id"] == nil {
		t.Fatalf("skip report should requeue: %v", body)
	}

	rq, err := env.queueRepo.Get(context.Background(), int64(body["requeued_id"].(float64)))
	if err != nil {
		t.Fatalf("requeued row missing: %v", err)
	}
	if rq.Reason != callqueue.ReasonPreviouslySkipped || rq.TipType != callqueue.TipScooby {
		t.Fatalf("requeue provenance wrong: %+v", rq)
	}
	if !rq.VestingAt.After(time.Now().UTC()) {
		t.Fatalf("requeue must vest in the future: %v", rq.VestingAt)
	}
}

func TestSubmitReport_TimestampWithoutSkipTagIgnored(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	loc := env.seedClaimable(t, locations.Location{})

	if w, _ := env.do(t, http.MethodPost, "/caller/request-call", nil); w.Code != http.StatusOK {
		t.Fatalf("claim failed")
	}

	w, body := env.do(t, http.MethodPost, "/caller/report", map[string]any{
		"location_id":       loc.PublicID,
		"do_not_call_until": time.Now().UTC().Add(time.Hour),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d", w.Code)
	}
	if body["requeued_id"] != nil {
		t.Fatalf("timestamp without skip tag must not requeue: %v", body)
	}
}

func TestSubmitReport_UnknownLocation(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	w, _ := env.do(t, http.MethodPost, "/caller/report", map[string]any{"location_id": "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestCallerStats(t *testing.T) {
	env := newTestEnv(t, "caller-1", "caller")
	loc := env.seedClaimable(t, locations.Location{})

	if w, _ := env.do(t, http.MethodPost, "/caller/request-call", nil); w.Code != http.StatusOK {
		t.Fatalf("claim failed")
	}
	if w, _ := env.do(t, http.MethodPost, "/caller/report", map[string]any{"location_id": loc.PublicID}); w.Code != http.StatusCreated {
		t.Fatalf("report failed")
	}

	w, body := env.do(t, http.MethodGet, "/caller/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if body["total"].(float64) != 1 || body["today"].(float64) != 1 {
		t.Fatalf("unexpected stats: %v", body)
	}
}

func TestAdminEnqueue(t *testing.T) {
	env := newTestEnv(t, "admin-1", "admin")
	loc := env.dir.Add(locations.Location{Name: "Costco Pharmacy", PhoneNumber: "(555) 555-0102", State: "CA"})

	w, body := env.do(t, http.MethodPost, "/admin/call-requests", map[string]any{
		"location_ids":   []string{loc.PublicID},
		"reason":         "New location",
		"priority_group": 2,
		"priority":       10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["created"].(float64) != 1 {
		t.Fatalf("unexpected body: %v", body)
	}
	if evs := env.audit.Events(); len(evs) != 1 || evs[0].ActorID != "admin-1" {
		t.Fatalf("enqueue not audited: %+v", evs)
	}
}

func TestAdminEnqueue_RejectsBadGroup(t *testing.T) {
	env := newTestEnv(t, "admin-1", "admin")
	loc := env.dir.Add(locations.Location{Name: "X", PhoneNumber: "1", State: "CA"})

	w, _ := env.do(t, http.MethodPost, "/admin/call-requests", map[string]any{
		"location_ids":   []string{loc.PublicID},
		"priority_group": 7,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestAdminBulkDelete(t *testing.T) {
	env := newTestEnv(t, "admin-1", "admin")
	env.seedClaimable(t, locations.Location{})

	w, body := env.do(t, http.MethodDelete, "/admin/call-requests", map[string]any{"ids": []int64{1}})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if body["deleted"].(float64) != 1 {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAdminLocationFlags_PrunesQueue(t *testing.T) {
	env := newTestEnv(t, "admin-1", "admin")
	loc := env.seedClaimable(t, locations.Location{})

	w, body := env.do(t, http.MethodPost, "/admin/locations/"+loc.PublicID+"/flags", map[string]any{
		"do_not_call": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["pruned"].(float64) != 1 {
		t.Fatalf("expected 1 pruned row: %v", body)
	}

	// The queue no longer offers the location.
	if w, _ := env.do(t, http.MethodPost, "/caller/request-call", nil); w.Code != http.StatusNotFound {
		t.Fatalf("flagged location still claimable, got %d", w.Code)
	}

	if evs := env.audit.Events(); len(evs) != 1 || evs[0].LocationID != loc.ID {
		t.Fatalf("flag change not audited: %+v", evs)
	}
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	h := Handlers{Auth: m}

	r := gin.New()
	r.POST("/auth/login", h.Login)

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(map[string]string{"reporter_id": "caller-1", "role": "caller"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", &buf))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out["access_token"] == "" || out["refresh_token"] == "" {
		t.Fatalf("tokens missing: %v", out)
	}
}
