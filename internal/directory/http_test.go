package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL, "secret", time.Second)
	require.NoError(t, err)
	return c
}

func TestHTTPClient_FetchOne(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/users/u-1", r.URL.Path)
		w.Write([]byte(`{"response":{"uuid":"u-1","username":"alice","hwidDeviceLimit":3}}`))
	})

	e, err := c.FetchOne(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", e.Username)
	require.NotNil(t, e.HwidDeviceLimit)
	assert.Equal(t, int64(3), *e.HwidDeviceLimit)
}

func TestHTTPClient_NotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.FetchOne(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPClient_RemoteFailure(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"username taken"}`))
	})
	_, err := c.Create(context.Background(), Attributes{"username": "alice01"})
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Contains(t, re.Error(), "username taken")
}

func TestHTTPClient_UpdateFieldsSendsUUIDAndCanonicalDate(t *testing.T) {
	var body map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"uuid":"u-1","username":"alice"}`))
	})

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.UpdateFields(context.Background(), "u-1", Attributes{"expireAt": day})
	require.NoError(t, err)
	assert.Equal(t, "u-1", body["uuid"])
	assert.Equal(t, "2025-03-01T00:00:00.000Z", body["expireAt"])
}

func TestHTTPClient_Actions(t *testing.T) {
	var paths []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.Write([]byte(`{}`))
	})
	ctx := context.Background()
	for _, a := range []Action{ActionEnable, ActionDisable, ActionResetTraffic, ActionRevoke, ActionDelete} {
		require.NoError(t, Apply(ctx, c, a, "u-1"))
	}
	assert.Equal(t, []string{
		"POST /api/users/u-1/actions/enable",
		"POST /api/users/u-1/actions/disable",
		"POST /api/users/u-1/actions/reset-traffic",
		"POST /api/users/u-1/actions/revoke",
		"DELETE /api/users/u-1",
	}, paths)
}

func TestHTTPClient_FetchAllNested(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"users":[{"uuid":"a"},{"uuid":"b"}],"total":2}}`))
	})
	l, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, Normalize(l), 2)
}

func TestNewHTTPClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewHTTPClient("panel.local", "", 0)
	assert.Error(t, err)
}

func TestHTTPClient_Devices(t *testing.T) {
	var requests []string
	var bodies []map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"response":{"total":1,"devices":[{"hwid":"hw-1","platform":"android"}]}}`))
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	devices, err := c.ListDevices(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "hw-1", devices[0].HWID)
	assert.Equal(t, "android", devices[0].Platform)

	require.NoError(t, c.AddDevice(ctx, "u-1", "hw-2"))
	require.NoError(t, c.DeleteDevice(ctx, "u-1", "hw-1"))
	assert.Equal(t, []string{
		"GET /api/hwid/devices/u-1",
		"POST /api/hwid/devices",
		"POST /api/hwid/devices/delete",
	}, requests)
	assert.Equal(t, map[string]any{"userUuid": "u-1", "hwid": "hw-2"}, bodies[0])
	assert.Equal(t, map[string]any{"userUuid": "u-1", "hwid": "hw-1"}, bodies[1])
}

func TestHTTPClient_DevicesBareList(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":[{"hwid":"a"},{"hwid":"b"}]}`))
	})
	devices, err := c.ListDevices(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestHTTPClient_Usage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/stats/usage/u-1/range", r.URL.Path)
		assert.Equal(t, "2025-03-01T00:00:00.000Z", r.URL.Query().Get("start"))
		assert.Equal(t, "2025-03-31T00:00:00.000Z", r.URL.Query().Get("end"))
		w.Write([]byte(`{"response":[{"nodeUuid":"n-1","nodeName":"Frankfurt","date":"2025-03-02","total":1024}]}`))
	})
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	entries, err := c.Usage(context.Background(), "u-1", from, from.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Frankfurt", entries[0].NodeName)
	assert.Equal(t, int64(1024), entries[0].Total)
}
