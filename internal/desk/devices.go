package desk

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/event"
	"github.com/matthewbaird/accountdesk/internal/wizard"
)

// UsageWindow is how far back stats look.
const UsageWindow = 30 * 24 * time.Hour

// UsageSummary is an account's traffic over the usage window, by node.
type UsageSummary struct {
	From         time.Time             `json:"from"`
	To           time.Time             `json:"to"`
	Nodes        []directory.NodeUsage `json:"nodes"`
	WindowTotal  int64                 `json:"window_total"`
	UsedBytes    int64                 `json:"used_bytes"`
	LimitBytes   int64                 `json:"limit_bytes"`
	UsedPercent  float64               `json:"used_percent,omitempty"`
	DeviceLimit  *int64                `json:"device_limit,omitempty"`
	DevicesBound int                   `json:"devices_bound"`
}

func (d *Desk) devices(ctx context.Context, id string) Reply {
	devices, err := d.client.ListDevices(ctx, id)
	if err != nil {
		return remoteReply(err)
	}
	r := Reply{State: StateViewing, Devices: devices, Total: len(devices)}
	if e, err := d.accounts.Load(ctx, id); err == nil {
		r.Entity = e
	}
	if len(devices) == 0 {
		r.Message = "no devices"
	}
	return r
}

// changeDevice binds or unbinds a hardware id, then drops the account's
// cache entry since the device count shows on its card.
func (d *Desk) changeDevice(ctx context.Context, actor, id, hwid string, add bool) Reply {
	if hwid == "" {
		return failed(wizard.StateIdle, FailBadRequest, "hwid", "a hardware id is required")
	}
	var err error
	if add {
		err = d.client.AddDevice(ctx, id, hwid)
	} else {
		err = d.client.DeleteDevice(ctx, id, hwid)
	}
	if err != nil {
		d.log.Warn("device change failed", "id", id, "hwid", hwid, "add", add, "error", err)
		if errors.Is(err, directory.ErrDeviceNotFound) {
			return failed(StateViewing, wizard.FailNotFound, "hwid", "device "+strconv.Quote(hwid)+" is not registered")
		}
		if errors.Is(err, directory.ErrNotFound) {
			d.accounts.InvalidateOne(id)
		}
		return remoteReply(err)
	}
	d.accounts.InvalidateOne(id)
	d.log.Info("device changed", "id", id, "hwid", hwid, "add", add, "actor", actor)

	evt := event.NewDeviceChange(id, hwid, actor, add)
	if err := d.recorder.Record(ctx, evt); err != nil {
		d.log.Warn("recording event failed", "event_type", evt.EventType, "error", err)
	}

	r := d.devices(ctx, id)
	if r.Failure != nil {
		r = Reply{State: StateViewing}
	}
	if add {
		r.Message = "device added"
	} else {
		r.Message = "device removed"
	}
	return r
}

func (d *Desk) stats(ctx context.Context, id string) Reply {
	e, err := d.accounts.Load(ctx, id)
	if err != nil {
		return remoteReply(err)
	}
	to := d.now().UTC()
	from := to.Add(-UsageWindow)
	entries, err := d.client.Usage(ctx, id, from, to)
	if err != nil {
		return remoteReply(err)
	}
	sum := &UsageSummary{
		From:        from,
		To:          to,
		Nodes:       directory.SummarizeUsage(entries),
		UsedBytes:   e.UsedTrafficBytes,
		LimitBytes:  e.TrafficLimitBytes,
		DeviceLimit: e.HwidDeviceLimit,
	}
	for _, n := range sum.Nodes {
		sum.WindowTotal += n.Total
	}
	if e.TrafficLimitBytes > 0 {
		sum.UsedPercent = float64(e.UsedTrafficBytes) * 100 / float64(e.TrafficLimitBytes)
	}
	if devices, err := d.client.ListDevices(ctx, id); err == nil {
		sum.DevicesBound = len(devices)
	} else {
		d.log.Debug("device count unavailable", "id", id, "error", err)
	}
	r := Reply{State: StateViewing, Entity: e, Usage: sum}
	if len(sum.Nodes) == 0 {
		r.Message = "no traffic in the last 30 days"
	}
	return r
}
