package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrDeviceNotFound is returned when a hardware id is not registered to
// the account.
var ErrDeviceNotFound = errors.New("directory: device not found")

// Device is one hardware id bound to an account.
type Device struct {
	HWID        string     `json:"hwid"`
	Platform    string     `json:"platform,omitempty"`
	OSVersion   string     `json:"osVersion,omitempty"`
	DeviceModel string     `json:"deviceModel,omitempty"`
	UserAgent   string     `json:"userAgent,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// UsageEntry is the traffic one account used on one node on one day.
type UsageEntry struct {
	NodeUUID string `json:"nodeUuid"`
	NodeName string `json:"nodeName,omitempty"`
	Date     string `json:"date,omitempty"`
	Total    int64  `json:"total"`
}

// NodeUsage is usage summed per node.
type NodeUsage struct {
	NodeUUID string `json:"node_uuid"`
	NodeName string `json:"node_name"`
	Total    int64  `json:"total"`
}

// UnknownNode names usage entries that carry no node name.
const UnknownNode = "unknown node"

// SummarizeUsage sums entries per node, heaviest first.
func SummarizeUsage(entries []UsageEntry) []NodeUsage {
	byNode := make(map[string]*NodeUsage)
	var order []string
	for _, e := range entries {
		n, ok := byNode[e.NodeUUID]
		if !ok {
			n = &NodeUsage{NodeUUID: e.NodeUUID, NodeName: e.NodeName}
			if n.NodeName == "" {
				n.NodeName = UnknownNode
			}
			byNode[e.NodeUUID] = n
			order = append(order, e.NodeUUID)
		}
		n.Total += e.Total
	}
	out := make([]NodeUsage, 0, len(order))
	for _, id := range order {
		out = append(out, *byNode[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

// decodeDevices accepts {"response":{"devices":[...]}}, {"response":[...]}
// and a bare list.
func decodeDevices(raw []byte) ([]Device, error) {
	var wrapped struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Response) > 0 {
		raw = wrapped.Response
	}
	var nested struct {
		Devices []Device `json:"devices"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Devices != nil {
		return nested.Devices, nil
	}
	var list []Device
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding devices: %w", err)
	}
	return list, nil
}

// decodeUsage accepts {"response":[...]} and a bare list.
func decodeUsage(raw []byte) ([]UsageEntry, error) {
	var wrapped struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Response) > 0 {
		raw = wrapped.Response
	}
	var list []UsageEntry
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding usage: %w", err)
	}
	return list, nil
}
