package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type requestOpts struct {
	user    uuid.UUID
	role    enums.UserRole
	session string
	params  map[string]string
}

func newRequest(method, target, body string, opts requestOpts) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if opts.user != uuid.Nil {
		ctx = middleware.WithUserID(ctx, opts.user.String())
		role := opts.role
		if role == "" {
			role = enums.UserRoleCustomer
		}
		ctx = middleware.WithRole(ctx, string(role))
	}
	if opts.session != "" {
		ctx = middleware.WithCartSession(ctx, opts.session)
	}
	if len(opts.params) > 0 {
		rc := chi.NewRouteContext()
		for k, v := range opts.params {
			rc.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	return resp, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
