package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/matthewbaird/accountdesk/internal/desk"
	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/schema"
)

var (
	failColor   = color.New(color.FgRed, color.Bold)
	promptColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	dimColor    = color.New(color.Faint)
	headColor   = color.New(color.FgYellow)
)

// render prints one reply for a terminal.
func render(w io.Writer, r desk.Reply) {
	if f := r.Failure; f != nil {
		if f.Field != "" {
			failColor.Fprintf(w, "✗ %s (%s): %s\n", f.Kind, f.Field, f.Reason)
		} else {
			failColor.Fprintf(w, "✗ %s: %s\n", f.Kind, f.Reason)
		}
	}
	if r.Message != "" {
		okColor.Fprintln(w, r.Message)
	}
	if r.Entity != nil {
		renderEntity(w, r.Entity)
	}
	if len(r.Entities) > 0 {
		if r.Pages > 0 {
			headColor.Fprintf(w, "page %d/%d, %d accounts\n", r.Page, r.Pages, r.Total)
		}
		for _, e := range r.Entities {
			fmt.Fprintf(w, "  %-24s %-9s %s\n", e.Username, e.Status, dimColor.Sprint(e.UUID))
		}
	}
	if b := r.Bulk; b != nil {
		headColor.Fprintf(w, "bulk %s: %d ok, %d failed\n", b.Action, b.Succeeded, b.Failed)
		if len(b.FailedIDs) > 0 {
			line := strings.Join(b.FailedIDs, ", ")
			if b.MoreFails > 0 {
				line += fmt.Sprintf(" and %d more", b.MoreFails)
			}
			failColor.Fprintf(w, "  failed: %s\n", line)
		}
	}
	if len(r.Devices) > 0 {
		headColor.Fprintf(w, "%d devices\n", len(r.Devices))
		for _, d := range r.Devices {
			fmt.Fprintf(w, "  %-24s %s\n", d.HWID, dimColor.Sprint(strings.TrimSpace(d.Platform+" "+d.DeviceModel)))
		}
	}
	if u := r.Usage; u != nil {
		headColor.Fprintf(w, "usage %s to %s: %d bytes\n", schema.FormatDate(u.From), schema.FormatDate(u.To), u.WindowTotal)
		for _, n := range u.Nodes {
			fmt.Fprintf(w, "  %-24s %d\n", n.NodeName, n.Total)
		}
		if u.LimitBytes > 0 {
			dimColor.Fprintf(w, "  %.1f%% of limit used\n", u.UsedPercent)
		}
	}
	if len(r.Templates) > 0 {
		headColor.Fprintln(w, "templates:")
		for _, t := range r.Templates {
			fmt.Fprintf(w, "  %s\n", t)
		}
	}
	if len(r.Fields) > 0 {
		headColor.Fprintln(w, "fields:")
		for _, f := range r.Fields {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
	if p := r.Prompt; p != nil {
		req := "optional"
		if p.Required {
			req = "required"
		}
		promptColor.Fprintf(w, "[%d/%d] %s", p.Position, p.Total, p.Label)
		dimColor.Fprintf(w, " (%s)\n", req)
		if p.Current != nil {
			dimColor.Fprintf(w, "  current: %v\n", p.Current)
		}
		for _, preset := range p.Presets {
			fmt.Fprintf(w, "  • %s = %s\n", preset.Label, preset.Value)
		}
		if p.HasTemplateValue {
			dimColor.Fprintln(w, "  use_template_value keeps the template's value")
		}
	}
}

func renderEntity(w io.Writer, e *directory.Entity) {
	headColor.Fprintf(w, "%s ", e.Username)
	dimColor.Fprintln(w, e.UUID)
	rows := map[string]string{
		"status":  e.Status,
		"traffic": fmt.Sprintf("%d / %d bytes", e.UsedTrafficBytes, e.TrafficLimitBytes),
	}
	if e.ExpireAt != nil {
		rows["expires"] = schema.FormatDate(*e.ExpireAt)
	}
	if e.HwidDeviceLimit != nil {
		rows["devices"] = fmt.Sprint(*e.HwidDeviceLimit)
	}
	if e.Description != "" {
		rows["description"] = e.Description
	}
	if e.Tag != "" {
		rows["tag"] = e.Tag
	}
	if e.Email != "" {
		rows["email"] = e.Email
	}
	if e.SubscriptionURL != "" {
		rows["subscription"] = e.SubscriptionURL
	}
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %s\n", k, rows[k])
	}
}
