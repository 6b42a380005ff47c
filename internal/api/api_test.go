package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/suite"

	"uptimewatch/internal/archive"
	"uptimewatch/internal/auth"
	"uptimewatch/internal/checker"
	"uptimewatch/internal/models"
	"uptimewatch/internal/registry"
	"uptimewatch/internal/storage"
	"uptimewatch/internal/storage/memory"
)

const cronSecret = "cron-secret"

// stubProber answers up for every target except the unreachable hosts.
type stubProber struct {
	unreachable map[string]bool
	now         func() time.Time
}

func (p *stubProber) Probe(_ context.Context, t models.Target) models.Outcome {
	out := models.Outcome{TargetID: t.ID, Source: models.SourceServer, CheckedAt: p.now(), ResponseTimeMS: 12}
	if p.unreachable[t.Host] {
		out.ErrorMessage = null.StringFrom("dns: no such host")
		out.NeedsAlternateCheck = true
		return out
	}
	out.StatusCode = null.IntFrom(200)
	out.StatusText = null.StringFrom("OK")
	out.IsUp = true
	return out
}

type APITestSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	store  *memory.Store
	prober *stubProber
	server *Server
	token  string
}

func (s *APITestSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 6, 8, 12, 50, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	chicago, err := time.LoadLocation("America/Chicago")
	s.Require().NoError(err)

	s.store = memory.New()
	s.prober = &stubProber{unreachable: map[string]bool{}, now: clock}
	coord := checker.NewCoordinator(s.store, s.store, checker.WithCoordinatorClock(clock))
	sweeper := checker.NewSweeper(s.store, s.prober, coord, nil)
	sessions, err := auth.NewSessions("session-secret", time.Hour)
	s.Require().NoError(err)
	authenticator := auth.NewAuthenticator(s.store, sessions)
	s.Require().NoError(authenticator.EnsureAdmin(s.ctx, "admin", "password123"))

	s.server = NewServer(Deps{
		Registry:    registry.New(s.store, sweeper),
		Sweeper:     sweeper,
		Coordinator: coord,
		Archiver:    archive.New(s.store, archive.WithClock(clock), archive.WithLocation(chicago)),
		Auth:        authenticator,
	}, Options{
		CronSecret:       cronSecret,
		ArchiveHour:      7,
		ArchiveMinute:    50,
		ArchiveWindow:    5 * time.Minute,
		ScheduleLocation: chicago,
		Clock:            clock,
	})

	s.token, _, err = sessions.Issue("admin")
	s.Require().NoError(err)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func (s *APITestSuite) do(method, path string, body any, bearer string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *APITestSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *APITestSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	s.decode(rec, &body)
	return body.Error.Code
}

func (s *APITestSuite) createTarget(addr, name, env string) models.Target {
	rec := s.do(http.MethodPost, "/targets", map[string]string{"url": addr, "name": name, "environment": env}, s.token)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Target models.Target      `json:"target"`
		Check  models.SweepResult `json:"check"`
	}
	s.decode(rec, &resp)
	return resp.Target
}

func (s *APITestSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", nil, "")
	s.Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get("X-Request-Id"))
}

func (s *APITestSuite) TestWritesRequireAdmin() {
	rec := s.do(http.MethodPost, "/targets", map[string]string{"url": "https://example.com", "name": "x"}, "")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("unauthorized", s.errorCode(rec))

	rec = s.do(http.MethodPost, "/sweep", nil, "not-a-token")
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/sweep", nil, cronSecret)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *APITestSuite) TestCreateTargetChecksImmediately() {
	rec := s.do(http.MethodPost, "/targets", map[string]string{"url": "https://example.com", "name": "Example"}, s.token)
	s.Require().Equal(http.StatusCreated, rec.Code)

	var resp struct {
		Target models.Target `json:"target"`
		Check  struct {
			Recorded bool `json:"recorded"`
			Outcome  struct {
				StatusCode int  `json:"status_code"`
				IsUp       bool `json:"is_up"`
			} `json:"outcome"`
		} `json:"check"`
	}
	s.decode(rec, &resp)
	s.Equal("Example", resp.Target.Name)
	s.Equal(models.EnvironmentTesting, resp.Target.Environment)
	s.True(resp.Check.Recorded)
	s.Equal(200, resp.Check.Outcome.StatusCode)

	rec = s.do(http.MethodPost, "/targets", map[string]string{"url": "https://EXAMPLE.com/", "name": "Again"}, s.token)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("duplicate", s.errorCode(rec))
}

func (s *APITestSuite) TestCreateTargetRejectsBadInput() {
	rec := s.do(http.MethodPost, "/targets", map[string]string{"url": "not a url", "name": "x"}, s.token)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation", s.errorCode(rec))

	rec = s.do(http.MethodPost, "/targets", map[string]string{"url": "https://example.com", "name": "x", "environment": "staging"}, s.token)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation", s.errorCode(rec))

	req := httptest.NewRequest(http.MethodPost, "/targets", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	raw := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(raw, req)
	s.Equal(http.StatusBadRequest, raw.Code)
	s.Equal("invalid_request", s.errorCode(raw))
}

func (s *APITestSuite) TestListAndGetTargets() {
	a := s.createTarget("https://a.example.com", "A", "production")
	s.createTarget("https://b.example.com", "B", "testing")

	rec := s.do(http.MethodGet, "/targets", nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var all []struct {
		ID     int64   `json:"id"`
		Uptime float64 `json:"uptime_percentage"`
		Latest *struct {
			IsUp bool `json:"is_up"`
		} `json:"latest"`
	}
	s.decode(rec, &all)
	s.Require().Len(all, 2)
	s.Equal(100.0, all[0].Uptime)
	s.Require().NotNil(all[0].Latest)

	rec = s.do(http.MethodGet, "/targets?environment=production", nil, "")
	var prod []models.TargetStatus
	s.decode(rec, &prod)
	s.Require().Len(prod, 1)
	s.Equal(a.ID, prod[0].ID)

	rec = s.do(http.MethodGet, "/targets?environment=staging", nil, "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/targets/"+itoa(a.ID), nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var one struct {
		History []json.RawMessage `json:"history"`
	}
	s.decode(rec, &one)
	s.Len(one.History, 1)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/targets/999", nil, "").Code)
	rec = s.do(http.MethodGet, "/targets/abc", nil, "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid_request", s.errorCode(rec))
}

func (s *APITestSuite) TestUpdateAndDeleteTarget() {
	t := s.createTarget("https://a.example.com", "A", "")

	rec := s.do(http.MethodPut, "/targets/"+itoa(t.ID), map[string]string{"name": "Renamed"}, s.token)
	s.Require().Equal(http.StatusOK, rec.Code)
	var updated models.Target
	s.decode(rec, &updated)
	s.Equal("Renamed", updated.Name)
	s.Equal("https://a.example.com", updated.Address)

	s.Equal(http.StatusOK, s.do(http.MethodDelete, "/targets/"+itoa(t.ID), nil, s.token).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/targets/"+itoa(t.ID), nil, s.token).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/targets/"+itoa(t.ID), nil, "").Code)
}

func (s *APITestSuite) TestSweepHandsOffAlternateCheck() {
	s.createTarget("https://ok.example.com", "OK", "")
	s.prober.unreachable["intranet.example.com"] = true
	hidden := s.createTarget("https://intranet.example.com", "Intranet", "")

	rec := s.do(http.MethodPost, "/sweep", nil, s.token)
	s.Require().Equal(http.StatusOK, rec.Code)
	var sweep struct {
		Checked          int `json:"checked"`
		PendingAlternate int `json:"pending_alternate"`
		Results          []struct {
			TargetID            int64                      `json:"target_id"`
			Recorded            bool                       `json:"recorded"`
			NeedsAlternateCheck bool                       `json:"needs_alternate_check"`
			AlternateCheck      *models.AlternateProbePlan `json:"alternate_check"`
		} `json:"results"`
	}
	s.decode(rec, &sweep)
	s.Equal(2, sweep.Checked)
	s.Equal(1, sweep.PendingAlternate)
	s.Require().Len(sweep.Results, 2)
	s.False(sweep.Results[0].NeedsAlternateCheck)
	s.True(sweep.Results[0].Recorded)
	s.True(sweep.Results[1].NeedsAlternateCheck)
	s.Require().NotNil(sweep.Results[1].AlternateCheck)
	s.False(sweep.Results[1].Recorded)
	plan := sweep.Results[1].AlternateCheck

	// Neither the creation check nor the sweep recorded an outcome for it.
	list, err := s.store.ListOutcomes(s.ctx, storage.ListOutcomesParams{TargetID: hidden.ID})
	s.Require().NoError(err)
	s.Empty(list)

	submit := map[string]any{"targetId": hidden.ID, "checkId": plan.CheckID, "isUp": true, "responseTime": 80, "via": "image"}
	rec = s.do(http.MethodPost, "/alternate-check-result", submit, s.token)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var outcome struct {
		StatusCode int    `json:"status_code"`
		StatusText string `json:"status_text"`
		Source     string `json:"source"`
	}
	s.decode(rec, &outcome)
	s.Equal(200, outcome.StatusCode)
	s.Equal("alternate", outcome.Source)

	rec = s.do(http.MethodPost, "/alternate-check-result", submit, s.token)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("unknown_check", s.errorCode(rec))

	list, err = s.store.ListOutcomes(s.ctx, storage.ListOutcomesParams{TargetID: hidden.ID})
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *APITestSuite) doCanceled(method, path, bearer string) *httptest.ResponseRecorder {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	req := httptest.NewRequest(method, path, nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *APITestSuite) TestSweepSurvivesCallerDisconnect() {
	first := s.createTarget("https://a.example.com", "A", "")
	second := s.createTarget("https://b.example.com", "B", "")

	rec := s.doCanceled(http.MethodPost, "/sweep", s.token)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var sweep models.SweepSummary
	s.decode(rec, &sweep)
	s.Equal(2, sweep.Checked)
	s.Zero(sweep.Failed)
	for _, r := range sweep.Results {
		s.True(r.Recorded)
		s.Empty(r.Error)
	}

	rec = s.doCanceled(http.MethodPost, "/sweep/"+itoa(first.ID), s.token)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var one models.SweepResult
	s.decode(rec, &one)
	s.True(one.Recorded)

	rec = s.doCanceled(http.MethodPost, "/cron", cronSecret)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var report models.CronReport
	s.decode(rec, &report)
	s.True(report.Success)
	s.Require().NotNil(report.Sweep)
	s.Zero(report.Sweep.Failed)

	// create, /sweep and /cron checked both targets, /sweep/:id the first again
	list, err := s.store.ListOutcomes(s.ctx, storage.ListOutcomesParams{TargetID: first.ID})
	s.Require().NoError(err)
	s.Len(list, 4)
	list, err = s.store.ListOutcomes(s.ctx, storage.ListOutcomesParams{TargetID: second.ID})
	s.Require().NoError(err)
	s.Len(list, 3)
}

func (s *APITestSuite) TestAlternateResultValidation() {
	t := s.createTarget("https://a.example.com", "A", "")

	rec := s.do(http.MethodPost, "/alternate-check-result", map[string]any{"targetId": t.ID, "isUp": true, "errorMessage": "boom"}, s.token)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation", s.errorCode(rec))

	rec = s.do(http.MethodPost, "/alternate-check-result", map[string]any{"targetId": 999, "isUp": false}, s.token)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *APITestSuite) TestSweepOne() {
	t := s.createTarget("https://a.example.com", "A", "")
	rec := s.do(http.MethodPost, "/sweep/"+itoa(t.ID), nil, s.token)
	s.Require().Equal(http.StatusOK, rec.Code)

	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/sweep/999", nil, s.token).Code)
}

func (s *APITestSuite) TestLoginSessionLogout() {
	rec := s.do(http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "wrong"}, "")
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", map[string]string{"username": "Admin", "password": "password123"}, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	s.Require().Len(cookies, 1)
	s.Equal(auth.CookieName, cookies[0].Name)
	s.True(cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookies[0])
	session := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(session, req)
	var resp struct {
		Authenticated bool   `json:"authenticated"`
		Username      string `json:"username"`
	}
	s.decode(session, &resp)
	s.True(resp.Authenticated)
	s.Equal("admin", resp.Username)

	req = httptest.NewRequest(http.MethodPost, "/sweep", nil)
	req.AddCookie(cookies[0])
	sweep := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(sweep, req)
	s.Equal(http.StatusOK, sweep.Code)

	rec = s.do(http.MethodPost, "/auth/logout", nil, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	s.Require().Len(cleared, 1)
	s.Equal("", cleared[0].Value)
	s.Less(cleared[0].MaxAge, 0)

	rec = s.do(http.MethodGet, "/auth/session", nil, "")
	s.decode(rec, &resp)
	s.False(resp.Authenticated)
}

func (s *APITestSuite) addOldOutcome(targetID int64, age time.Duration) {
	o := &models.Outcome{TargetID: targetID, Source: models.SourceServer, CheckedAt: s.now.Add(-age),
		StatusCode: null.IntFrom(200), StatusText: null.StringFrom("OK"), IsUp: true, ResponseTimeMS: 30}
	s.Require().NoError(s.store.CreateOutcome(s.ctx, o))
}

func (s *APITestSuite) TestCronSweepsAndArchivesInWindow() {
	t := s.createTarget("https://a.example.com", "A", "")
	s.addOldOutcome(t.ID, 8*24*time.Hour)

	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/cron", nil, "").Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/cron", nil, s.token).Code)

	rec := s.do(http.MethodPost, "/cron", nil, cronSecret)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success          bool `json:"success"`
		ArchiveScheduled bool `json:"archive_scheduled"`
		Sweep            struct {
			Checked int `json:"checked"`
		} `json:"sweep"`
		Archive models.ArchiveResult `json:"archive"`
	}
	s.decode(rec, &resp)
	s.True(resp.Success)
	s.True(resp.ArchiveScheduled)
	s.Equal(1, resp.Sweep.Checked)
	s.Equal(models.ArchiveResult{Archived: 1, Deleted: 1}, resp.Archive)
}

func (s *APITestSuite) TestCronSkipsArchiveOutsideWindow() {
	t := s.createTarget("https://a.example.com", "A", "")
	s.addOldOutcome(t.ID, 8*24*time.Hour)
	s.now = s.now.Add(2 * time.Hour)

	rec := s.do(http.MethodGet, "/cron", nil, cronSecret)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp struct {
		ArchiveScheduled bool                  `json:"archive_scheduled"`
		Archive          *models.ArchiveResult `json:"archive"`
	}
	s.decode(rec, &resp)
	s.False(resp.ArchiveScheduled)
	s.Nil(resp.Archive)

	rec = s.do(http.MethodGet, "/cron?archive=force", nil, cronSecret)
	s.decode(rec, &resp)
	s.True(resp.ArchiveScheduled)
	s.Require().NotNil(resp.Archive)
	s.Equal(1, resp.Archive.Archived)
}

func (s *APITestSuite) TestArchiveStatusAndRun() {
	t := s.createTarget("https://a.example.com", "A", "")
	s.addOldOutcome(t.ID, 9*24*time.Hour)
	s.addOldOutcome(t.ID, 8*24*time.Hour)

	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/archive", nil, "").Code)

	rec := s.do(http.MethodGet, "/archive", nil, cronSecret)
	s.Require().Equal(http.StatusOK, rec.Code)
	var status models.ArchiveStatus
	s.decode(rec, &status)
	s.Equal(models.ArchiveStatus{RecordsToArchive: 2}, status)

	rec = s.do(http.MethodPost, "/archive", nil, s.token)
	s.Require().Equal(http.StatusOK, rec.Code)
	var result models.ArchiveResult
	s.decode(rec, &result)
	s.Equal(models.ArchiveResult{Archived: 2, Deleted: 2}, result)

	rec = s.do(http.MethodGet, "/archive", nil, s.token)
	s.decode(rec, &status)
	s.Equal(models.ArchiveStatus{TotalArchived: 2}, status)
}

func (s *APITestSuite) TestExportArchive() {
	rec := s.do(http.MethodGet, "/archive/export", nil, s.token)
	s.Equal(http.StatusNotFound, rec.Code)

	t := s.createTarget("https://a.example.com", "A", "")
	s.addOldOutcome(t.ID, 8*24*time.Hour)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/archive", nil, s.token).Code)

	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/archive/export", nil, cronSecret).Code)

	rec = s.do(http.MethodGet, "/archive/export", nil, s.token)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(`attachment; filename="url-status-archive-2024-06-08.txt"`, rec.Header().Get("Content-Disposition"))
	s.True(strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	s.Contains(rec.Body.String(), "URL: A\nLink: https://a.example.com\n")
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
