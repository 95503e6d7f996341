package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrleave/internal/app/server"
	"hrleave/internal/domain/auth"
	"hrleave/internal/domain/core"
	"hrleave/internal/domain/leave"
	"hrleave/internal/platform/config"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:                  testSecret,
		Environment:                "test",
		CORSAllowedOrigins:         []string{"*"},
		EmailFrom:                  "no-reply@example.com",
		RunSeed:                    true,
		MaxBodyBytes:               1 << 20,
		MetricsEnabled:             true,
		LeaveEscalationSLA:         48 * time.Hour,
		LeaveTeamConflictThreshold: 0.3,
		LeaveEncashmentCapDays:     30,
	}
}

func testDirectory() *core.Memory {
	dir := core.NewMemory()
	dir.PutPosition(core.Position{ID: "pos-mgr", Title: "Engineering Manager"})
	dir.PutPosition(core.Position{ID: "pos-dev", Title: "Engineer", SupervisorPositionID: "pos-mgr"})
	dir.PutPosition(core.Position{ID: "pos-hr", Title: "HR Business Partner"})
	hired := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)
	for id, pos := range map[string]string{"emp-1": "pos-dev", "mgr-1": "pos-mgr", "hr-1": "pos-hr"} {
		dir.PutProfile(core.Profile{
			EmployeeID:        id,
			FullName:          id,
			HireDate:          hired,
			Status:            leave.EmployeeActive,
			ContractType:      "PERMANENT",
			PrimaryPositionID: pos,
			WorkEmail:         id + "@example.com",
		})
	}
	return dir
}

type client struct {
	t    *testing.T
	base string
}

func token(t *testing.T, employeeID, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, auth.Claims{UserID: "user-" + employeeID, EmployeeID: employeeID, RoleName: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (c client) do(method, path, tok string, body any) (int, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func newTestServer(t *testing.T) (*server.App, client) {
	t.Helper()
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	app, err := server.NewWithBackends(context.Background(), testConfig(), testDirectory(), func() time.Time { return now })
	require.NoError(t, err)
	ts := httptest.NewServer(app.Router)
	t.Cleanup(ts.Close)
	return app, client{t: t, base: ts.URL}
}

func TestHealthEndpoints(t *testing.T) {
	_, c := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(c.base + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestLeaveRoutesRequireAuthentication(t *testing.T) {
	_, c := newTestServer(t)
	status, env := c.do(http.MethodGet, "/api/v1/leave/types", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthorized", env.Error.Code)
}

func TestLeaveRequestJourney(t *testing.T) {
	_, c := newTestServer(t)
	hr := token(t, "hr-1", auth.RoleHR)
	manager := token(t, "mgr-1", auth.RoleManager)
	employee := token(t, "emp-1", auth.RoleEmployee)

	status, env := c.do(http.MethodGet, "/api/v1/leave/types", employee, nil)
	require.Equal(t, http.StatusOK, status)
	var annualID string
	for _, lt := range decodeData[[]leave.LeaveType](t, env) {
		if lt.Code == "AL" {
			annualID = lt.ID
		}
	}
	require.NotEmpty(t, annualID, "seeded catalog contains annual leave")

	status, _ = c.do(http.MethodPost, "/api/v1/leave/entitlements", employee, map[string]any{
		"employeeId": "emp-1", "leaveTypeId": annualID, "yearlyEntitlement": 20,
	})
	assert.Equal(t, http.StatusForbidden, status, "employees cannot grant entitlements")

	status, _ = c.do(http.MethodPost, "/api/v1/leave/entitlements", hr, map[string]any{
		"employeeId": "emp-1", "leaveTypeId": annualID, "yearlyEntitlement": 20,
	})
	require.Equal(t, http.StatusCreated, status)

	status, env = c.do(http.MethodPost, "/api/v1/leave/requests", employee, map[string]any{
		"leaveTypeId": annualID, "fromDate": "2026-03-09", "toDate": "2026-03-13", "justification": "family trip",
	})
	require.Equal(t, http.StatusCreated, status)
	submitted := decodeData[leave.LeaveRequest](t, env)
	assert.Equal(t, 5, submitted.DurationDays)
	assert.Equal(t, leave.StatusPending, submitted.Status)

	status, _ = c.do(http.MethodPost, "/api/v1/leave/requests/"+submitted.ID+"/approve", employee, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = c.do(http.MethodGet, "/api/v1/leave/requests/pending", manager, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decodeData[[]leave.LeaveRequest](t, env), 1)

	status, env = c.do(http.MethodPost, "/api/v1/leave/requests/"+submitted.ID+"/approve", manager, map[string]any{"comment": "enjoy"})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[leave.LeaveRequest](t, env).ApprovalFlow, 2)

	status, _ = c.do(http.MethodPost, "/api/v1/leave/requests/"+submitted.ID+"/approve", manager, map[string]any{"stage": "hr"})
	assert.Equal(t, http.StatusForbidden, status, "managers cannot take the hr step")

	status, env = c.do(http.MethodPost, "/api/v1/leave/requests/"+submitted.ID+"/approve", hr, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, leave.StatusApproved, decodeData[leave.LeaveRequest](t, env).Status)

	status, env = c.do(http.MethodGet, "/api/v1/leave/entitlements", employee, nil)
	require.Equal(t, http.StatusOK, status)
	ents := decodeData[[]leave.LeaveEntitlement](t, env)
	require.Len(t, ents, 1)
	assert.Equal(t, 5.0, ents[0].Taken)
	assert.Equal(t, 15.0, ents[0].Remaining)

	status, env = c.do(http.MethodGet, "/api/v1/notifications", employee, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, decodeData[[]map[string]any](t, env), "approval notifies the employee")

	status, env = c.do(http.MethodPost, "/api/v1/leave/settlements/emp-1/calculate", hr, map[string]any{"dailyRate": "100"})
	require.Equal(t, http.StatusOK, status)
	settlement := decodeData[leave.Settlement](t, env)
	assert.True(t, decimal.NewFromInt(1500).Equal(settlement.Total), "got %s", settlement.Total)

	status, env = c.do(http.MethodGet, "/api/v1/audit/events?entityId="+submitted.ID, hr, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "leave.request.approve.hr")
}

func TestSubmitShortfallIsReported(t *testing.T) {
	app, c := newTestServer(t)
	employee := token(t, "emp-1", auth.RoleEmployee)

	types, err := app.Leave.ListLeaveTypes(context.Background())
	require.NoError(t, err)
	var annualID string
	for _, lt := range types {
		if lt.Code == "AL" {
			annualID = lt.ID
		}
	}
	_, err = app.Leave.CreateEntitlement(context.Background(), leave.LeaveEntitlement{EmployeeID: "emp-1", LeaveTypeID: annualID, YearlyEntitlement: 2})
	require.NoError(t, err)

	status, env := c.do(http.MethodPost, "/api/v1/leave/requests", employee, map[string]any{
		"leaveTypeId": annualID, "fromDate": "2026-03-09", "toDate": "2026-03-11",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, leave.RuleBalance, env.Error.Code)

	var details map[string]float64
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	assert.Equal(t, 1.0, details["shortfall"])

	status, env = c.do(http.MethodPost, "/api/v1/leave/requests", employee, map[string]any{"leaveTypeId": annualID, "fromDate": "03/09/2026"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestRunJobRequiresJobPermission(t *testing.T) {
	_, c := newTestServer(t)

	status, _ := c.do(http.MethodPost, "/api/v1/leave/jobs/escalation", token(t, "emp-1", auth.RoleEmployee), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := c.do(http.MethodPost, "/api/v1/leave/jobs/escalation", token(t, "hr-1", auth.RoleHR), nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, _ = c.do(http.MethodPost, "/api/v1/leave/jobs/unknown", token(t, "hr-1", auth.RoleHR), nil)
	assert.Equal(t, http.StatusNotFound, status)
}
