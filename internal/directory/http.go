package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient talks to a panel-style REST directory:
//
//	GET    /api/users
//	GET    /api/users/{uuid}
//	POST   /api/users
//	PATCH  /api/users                         (uuid in body)
//	POST   /api/users/{uuid}/actions/{action}
//	DELETE /api/users/{uuid}
//	GET    /api/hwid/devices/{uuid}
//	POST   /api/hwid/devices                  (userUuid, hwid)
//	POST   /api/hwid/devices/delete           (userUuid, hwid)
//	GET    /api/users/stats/usage/{uuid}/range?start=&end=
type HTTPClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewHTTPClient creates a client for the directory at baseURL.
func NewHTTPClient(baseURL, token string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing directory url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("directory url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{base: u, token: token, http: &http.Client{Timeout: timeout}}, nil
}

func (c *HTTPClient) FetchOne(ctx context.Context, id string) (*Entity, error) {
	raw, err := c.do(ctx, "fetch", http.MethodGet, "/api/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeEntity("fetch", raw)
}

func (c *HTTPClient) FetchAll(ctx context.Context) (ListResponse, error) {
	raw, err := c.do(ctx, "list", http.MethodGet, "/api/users", nil)
	if err != nil {
		return nil, err
	}
	l, err := DecodeList(raw)
	if err != nil {
		return nil, &RemoteError{Op: "list", Err: err}
	}
	return l, nil
}

func (c *HTTPClient) Create(ctx context.Context, attrs Attributes) (*Entity, error) {
	raw, err := c.do(ctx, "create", http.MethodPost, "/api/users", attrs)
	if err != nil {
		return nil, err
	}
	return decodeEntity("create", raw)
}

func (c *HTTPClient) UpdateFields(ctx context.Context, id string, attrs Attributes) (*Entity, error) {
	body := attrs.Clone()
	body["uuid"] = id
	raw, err := c.do(ctx, "update", http.MethodPatch, "/api/users", body)
	if err != nil {
		return nil, err
	}
	return decodeEntity("update", raw)
}

func (c *HTTPClient) Enable(ctx context.Context, id string) error {
	return c.action(ctx, id, "enable")
}

func (c *HTTPClient) Disable(ctx context.Context, id string) error {
	return c.action(ctx, id, "disable")
}

func (c *HTTPClient) ResetTraffic(ctx context.Context, id string) error {
	return c.action(ctx, id, "reset-traffic")
}

func (c *HTTPClient) RevokeSubscription(ctx context.Context, id string) error {
	return c.action(ctx, id, "revoke")
}

func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, "/api/users/"+url.PathEscape(id), nil)
	return err
}

func (c *HTTPClient) ListDevices(ctx context.Context, id string) ([]Device, error) {
	raw, err := c.do(ctx, "devices", http.MethodGet, "/api/hwid/devices/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	devices, err := decodeDevices(raw)
	if err != nil {
		return nil, &RemoteError{Op: "devices", Err: err}
	}
	return devices, nil
}

type deviceRequest struct {
	UserUUID string `json:"userUuid"`
	HWID     string `json:"hwid"`
}

func (c *HTTPClient) AddDevice(ctx context.Context, id, hwid string) error {
	_, err := c.do(ctx, "add_device", http.MethodPost, "/api/hwid/devices", deviceRequest{UserUUID: id, HWID: hwid})
	return err
}

func (c *HTTPClient) DeleteDevice(ctx context.Context, id, hwid string) error {
	_, err := c.do(ctx, "del_device", http.MethodPost, "/api/hwid/devices/delete", deviceRequest{UserUUID: id, HWID: hwid})
	return err
}

func (c *HTTPClient) Usage(ctx context.Context, id string, from, to time.Time) ([]UsageEntry, error) {
	q := url.Values{}
	q.Set("start", from.UTC().Format(TimestampLayout))
	q.Set("end", to.UTC().Format(TimestampLayout))
	raw, err := c.do(ctx, "usage", http.MethodGet, "/api/users/stats/usage/"+url.PathEscape(id)+"/range?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	entries, err := decodeUsage(raw)
	if err != nil {
		return nil, &RemoteError{Op: "usage", Err: err}
	}
	return entries, nil
}

func (c *HTTPClient) action(ctx context.Context, id, name string) error {
	_, err := c.do(ctx, name, http.MethodPost, "/api/users/"+url.PathEscape(id)+"/actions/"+name, nil)
	return err
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &RemoteError{Op: op, Err: err}
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode >= 300:
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Err: errors.New(errorMessage(raw))}
	}
	return raw, nil
}

func decodeEntity(op string, raw []byte) (*Entity, error) {
	var env struct {
		Response *Entity `json:"response"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Response != nil {
		return env.Response, nil
	}
	var e Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, &RemoteError{Op: op, Err: fmt.Errorf("decoding account: %w", err)}
	}
	if e.UUID == "" {
		return nil, &RemoteError{Op: op, Err: errors.New("response carries no account")}
	}
	return &e, nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
