package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-assistant/internal/assistant/authz"
	"crm-assistant/internal/assistant/dispatch"
	"crm-assistant/internal/assistant/intent"
	"crm-assistant/internal/assistant/router"
	"crm-assistant/internal/common/config"
	stderrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
)

type stubRouter struct {
	op  *router.OperationRequest
	err error
}

func (s *stubRouter) Route(_ context.Context, command string) (*router.OperationRequest, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.op, nil
}

type stubDispatcher struct {
	result     *dispatch.Result
	err        error
	lastCaller authz.Caller
}

func (s *stubDispatcher) Dispatch(_ context.Context, caller authz.Caller, req *router.OperationRequest) (*dispatch.Result, error) {
	s.lastCaller = caller
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.App.Name = "crm-assistant"
	cfg.Server.Port = 8080
	cfg.Assistant.MaxCommandLength = 2000
	return cfg
}

func newTestServer(t *testing.T, r CommandRouter, d CommandDispatcher) *Server {
	return New(testConfig(), r, d, nil, logger.NewTestLogger(t))
}

func postCommand(srv *Server, command string, headers map[string]string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"command": command})
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/command", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func staffHeaders() map[string]string {
	return map[string]string{
		"X-User-Id":   "user-1",
		"X-User-Role": "staff",
	}
}

func TestHandleCommand_HappyPath(t *testing.T) {
	op := &router.OperationRequest{
		Intent:       intent.FindContact,
		Payload:      router.LookupPayload{Identifier: "alice"},
		ResponseText: "Here is what I found.",
	}
	dispatcher := &stubDispatcher{result: &dispatch.Result{
		Intent:       intent.FindContact,
		ResponseText: "Here is what I found.",
	}}
	srv := newTestServer(t, &stubRouter{op: op}, dispatcher)

	rec := postCommand(srv, "find alice", staffHeaders())

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope dispatch.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, intent.FindContact, envelope.Intent)
	assert.Equal(t, "Here is what I found.", envelope.ResponseText)
	assert.Equal(t, "user-1", dispatcher.lastCaller.UserID)
	assert.Equal(t, authz.RoleStaff, dispatcher.lastCaller.Role)
}

func TestHandleCommand_MissingIdentityHeaders(t *testing.T) {
	srv := newTestServer(t, &stubRouter{}, &stubDispatcher{})

	rec := postCommand(srv, "find alice", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(stderrors.ErrCodeUnauthenticated))
}

func TestHandleCommand_UnknownRoleIsUnauthenticated(t *testing.T) {
	srv := newTestServer(t, &stubRouter{}, &stubDispatcher{})

	rec := postCommand(srv, "find alice", map[string]string{
		"X-User-Id":   "user-1",
		"X-User-Role": "superuser",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCommand_MasterAdminHeader(t *testing.T) {
	op := &router.OperationRequest{Intent: intent.GeneralQuery, Payload: router.GeneralPayload{Text: "hi"}}
	dispatcher := &stubDispatcher{result: &dispatch.Result{Intent: intent.GeneralQuery, ResponseText: "hi"}}
	srv := newTestServer(t, &stubRouter{op: op}, dispatcher)

	rec := postCommand(srv, "hello", map[string]string{
		"X-User-Id":      "root",
		"X-User-Role":    "admin",
		"X-Master-Admin": "true",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, dispatcher.lastCaller.IsMasterAdmin)
}

func TestHandleCommand_EmptyCommand(t *testing.T) {
	srv := newTestServer(t, &stubRouter{}, &stubDispatcher{})

	rec := postCommand(srv, "   ", staffHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommand_OversizedCommand(t *testing.T) {
	srv := newTestServer(t, &stubRouter{}, &stubDispatcher{})

	rec := postCommand(srv, strings.Repeat("x", 2001), staffHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(stderrors.ErrCodeInvalidArgument))
}

func TestHandleCommand_MalformedBody(t *testing.T) {
	srv := newTestServer(t, &stubRouter{}, &stubDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/command", strings.NewReader("not json"))
	for k, v := range staffHeaders() {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommand_OracleUnavailableIs503(t *testing.T) {
	srv := newTestServer(t, &stubRouter{
		err: stderrors.NewOracleUnavailableError(context.DeadlineExceeded),
	}, &stubDispatcher{})

	rec := postCommand(srv, "find alice", staffHeaders())

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), string(stderrors.ErrCodeOracleUnavailable))
}

func TestHandleCommand_PermissionDeniedIs403(t *testing.T) {
	op := &router.OperationRequest{Intent: intent.DeleteContact, Payload: router.LookupPayload{Identifier: "x"}}
	srv := newTestServer(t, &stubRouter{op: op}, &stubDispatcher{
		err: stderrors.NewPermissionDeniedError(stderrors.DenyInsufficientRole, "role viewer may not perform DELETE_CONTACT"),
	})

	rec := postCommand(srv, "delete x", map[string]string{
		"X-User-Id":   "user-2",
		"X-User-Role": "viewer",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), string(stderrors.DenyInsufficientRole))
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &stubRouter{}, &stubDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crm-assistant")
}

func TestMetricsEndpointIsWired(t *testing.T) {
	srv := newTestServer(t, &stubRouter{}, &stubDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
