package pinner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
)

func newTestClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: baseURL, Token: token})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestVerifyPin_Pinned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/pinList", r.URL.Path)
		assert.Equal(t, "QmWork", r.URL.Query().Get("hashContains"))
		assert.Equal(t, "pinned", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"count": 1,
			"rows": []map[string]string{
				{"ipfs_pin_hash": "QmWork", "date_pinned": "2026-01-01T00:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "secret")
	pinned, err := c.VerifyPin(context.Background(), "QmWork")
	require.NoError(t, err)
	assert.True(t, pinned)
}

func TestVerifyPin_EmptyResultMeansUnpinned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"count": 0, "rows": []any{}}) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "secret")
	pinned, err := c.VerifyPin(context.Background(), "QmGone")
	require.NoError(t, err)
	assert.False(t, pinned)
}

func TestVerifyPin_UnpinnedRowMeansUnpinned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"count": 1,
			"rows": []map[string]string{
				{"ipfs_pin_hash": "QmGone", "date_unpinned": "2026-02-01T00:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "secret")
	pinned, err := c.VerifyPin(context.Background(), "QmGone")
	require.NoError(t, err)
	assert.False(t, pinned)
}

func TestVerifyPin_ServerErrorIsConservative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "secret")
	pinned, err := c.VerifyPin(context.Background(), "QmWork")
	require.Error(t, err)
	assert.True(t, pinned)
	assert.True(t, apperrors.IsTransient(err))
}

func TestVerifyPin_UnreachableIsConservative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := newTestClient(t, srv.URL, "secret")
	pinned, err := c.VerifyPin(context.Background(), "QmWork")
	require.Error(t, err)
	assert.True(t, pinned)
	assert.True(t, apperrors.IsTransient(err))
}

func TestVerifyPin_GarbageBodyIsConservative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not json</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "secret")
	pinned, err := c.VerifyPin(context.Background(), "QmWork")
	require.Error(t, err)
	assert.True(t, pinned)
}

func TestPinByHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pinning/pinByHash", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload struct {
			HashToPin  string            `json:"hashToPin"`
			PinataMeta map[string]string `json:"pinataMetadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "QmWork", payload.HashToPin)
		assert.Equal(t, "bounty-logo contest", payload.PinataMeta["name"])
		assert.Equal(t, "3", payload.PinataMeta["jobId"])
		assert.Equal(t, "1", payload.PinataMeta["submissionId"])

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "secret")
	ok, err := c.PinByHash(context.Background(), "QmWork", core.PinMetadata{
		Name:         "bounty-logo contest",
		JobID:        3,
		SubmissionID: 1,
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPinByHash_RequiresToken(t *testing.T) {
	c := newTestClient(t, "http://localhost:1", "")

	ok, err := c.PinByHash(context.Background(), "QmWork", core.PinMetadata{})
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestPinByHash_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "secret")
	ok, err := c.PinByHash(context.Background(), "QmWork", core.PinMetadata{})
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, apperrors.IsTransient(err))
}
