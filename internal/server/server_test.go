package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"stratline/internal/config"
	"stratline/internal/db"
	"stratline/internal/domain"
	"stratline/internal/engine"
	"stratline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("plan-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.InitPlan(ctx, "plan-1", "Test Plan", "", "", "", "tester"); err != nil {
		t.Fatalf("init plan: %v", err)
	}
	if _, err := e.CreateUser(ctx, "admin-1", "Admin", "administrator", "tester"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := e.CreateUser(ctx, "approver-1", "Approver", "approver", "admin-1"); err != nil {
		t.Fatalf("create approver: %v", err)
	}
	if _, err := e.CreateUser(ctx, "contrib-1", "Contributor", "contributor", "admin-1"); err != nil {
		t.Fatalf("create contributor: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

// buildChain creates pillar/objective/initiative over the API and returns the
// initiative id.
func buildChain(t *testing.T, srv *testServer) string {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/plan-1/pillars", map[string]any{
		"title": "Pillar",
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create pillar: %d %s", res.StatusCode, string(data))
	}
	var pillar domain.Pillar
	_ = json.Unmarshal(data, &pillar)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/plan-1/objectives", map[string]any{
		"pillar_id": pillar.ID,
		"title":     "Objective",
		"weight":    1,
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create objective: %d %s", res.StatusCode, string(data))
	}
	var obj domain.Objective
	_ = json.Unmarshal(data, &obj)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/plan-1/initiatives", map[string]any{
		"objective_id": obj.ID,
		"title":        "Initiative",
		"weight":       1,
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create initiative: %d %s", res.StatusCode, string(data))
	}
	var init domain.Initiative
	_ = json.Unmarshal(data, &init)
	return init.ID
}

func createActivity(t *testing.T, srv *testServer, initiativeID string, weight float64, title string) domain.Activity {
	t.Helper()
	body := map[string]any{"title": title, "weight": weight}
	if initiativeID != "" {
		body["initiative_id"] = initiativeID
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/plans/plan-1/activities", body, asActor("admin-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create activity: %d %s", res.StatusCode, string(data))
	}
	var a domain.Activity
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	return a
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestSubmitApproveFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	initID := buildChain(t, srv)
	a := createActivity(t, srv, initID, 1, "Ship feature")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+a.ID+"/updates", map[string]any{
		"progress": 80,
		"comment":  "nearly there",
	}, asActor("contrib-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	// Recorded progress must not move before approval.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/"+a.ID, nil, asActor("contrib-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get activity: %d %s", res.StatusCode, string(data))
	}
	var fetched domain.Activity
	_ = json.Unmarshal(data, &fetched)
	if fetched.Progress != 0 || fetched.ApprovalStatus != "pending" {
		t.Fatalf("activity moved before approval: %+v", fetched)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+a.ID+"/approve", nil, asActor("approver-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}
	var approved domain.Activity
	_ = json.Unmarshal(data, &approved)
	if approved.Progress != 80 || approved.Status != "On Track" || approved.ApprovalStatus != "approved" {
		t.Fatalf("approval did not copy pending figures: %+v", approved)
	}
}

func TestDeclineRequiresApproverRole(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	initID := buildChain(t, srv)
	a := createActivity(t, srv, initID, 1, "Needs review")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+a.ID+"/updates", map[string]any{
		"progress": 30,
		"comment":  "some progress",
	}, asActor("contrib-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+a.ID+"/decline", map[string]any{
		"reason": "not buying it",
	}, asActor("contrib-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if env.Error.Code != "forbidden" {
		t.Fatalf("error code %q, want forbidden", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+a.ID+"/decline", map[string]any{
		"reason": "no evidence",
	}, asActor("approver-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decline by approver: %d %s", res.StatusCode, string(data))
	}
	var declined domain.Activity
	_ = json.Unmarshal(data, &declined)
	if declined.ApprovalStatus != "declined" || declined.DeclineReason == nil || *declined.DeclineReason != "no evidence" {
		t.Fatalf("decline not recorded: %+v", declined)
	}
	if declined.Progress != 0 {
		t.Fatalf("decline moved recorded progress: %+v", declined)
	}
}

func TestErrorEnvelopeShapes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	initID := buildChain(t, srv)
	a := createActivity(t, srv, initID, 1, "Envelope")

	// Missing resource -> 404 not_found.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/does-not-exist", nil, asActor("contrib-1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "not_found" {
		t.Fatalf("error code %q, want not_found", env.Error.Code)
	}

	// Domain validation -> 400 bad_request.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+a.ID+"/updates", map[string]any{
		"progress": 50,
		"comment":  "",
	}, asActor("contrib-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	env = errorEnvelope{}
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "bad_request" {
		t.Fatalf("error code %q, want bad_request", env.Error.Code)
	}

	// System rule edit -> 403 forbidden.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/rules/rule-on-track", map[string]any{
		"status": "Renamed",
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/plans", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	// Health stays open.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", res.StatusCode)
	}
}

func TestDevLoginBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"user_id": "approver-1",
		"role":    "approver",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("no token in response: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer request: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, raw, err := srv.Engine.CreateAPIKey(context.Background(), "contrib-1", "ci", "admin-1")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans", nil, map[string]string{
		"X-Api-Key": raw,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key request: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans", nil, map[string]string{
		"X-Api-Key": "slk_wrong",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d %s", res.StatusCode, string(data))
	}
}

func TestReportEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	initID := buildChain(t, srv)
	heavy := createActivity(t, srv, initID, 3, "Heavy")
	createActivity(t, srv, initID, 1, "Light")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+heavy.ID+"/updates", map[string]any{
		"progress": 100,
		"comment":  "done",
	}, asActor("contrib-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities/"+heavy.ID+"/approve", nil, asActor("approver-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans/plan-1/report", nil, asActor("contrib-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report: %d %s", res.StatusCode, string(data))
	}
	var rep engine.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if rep.Progress != 75 {
		t.Fatalf("plan progress %d, want 75", rep.Progress)
	}
	foundHeavy := false
	for _, n := range rep.Nodes {
		if n.ID == heavy.ID {
			foundHeavy = true
			if n.Status != "Completed As Per Target" {
				t.Fatalf("heavy status %q", n.Status)
			}
		}
	}
	if !foundHeavy {
		t.Fatalf("heavy activity missing from report")
	}
}
