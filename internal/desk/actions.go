package desk

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/matthewbaird/accountdesk/internal/auth"
	"github.com/matthewbaird/accountdesk/internal/bulk"
	"github.com/matthewbaird/accountdesk/internal/command"
	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/event"
	"github.com/matthewbaird/accountdesk/internal/search"
	"github.com/matthewbaird/accountdesk/internal/wizard"
)

// bulkActions are the actions allowed over many ids.
var bulkActions = map[directory.Action]bool{
	directory.ActionEnable:       true,
	directory.ActionDisable:      true,
	directory.ActionResetTraffic: true,
}

func (d *Desk) stateless(ctx context.Context, actor string, role auth.Role, cmd command.Command) Reply {
	switch cmd.Verb {
	case command.List:
		return d.list(ctx, cmd.Arg(0))
	case command.Search:
		return d.search(ctx, cmd.Text)
	case command.View:
		return d.view(ctx, cmd.TargetID)
	case command.Templates:
		return Reply{State: wizard.StateIdle, Templates: d.templates.ListNames()}
	case command.Help:
		return Reply{State: wizard.StateIdle, Message: help(role)}
	case command.Bulk:
		return d.bulkApply(ctx, actor, cmd)
	}
	if command.Targeted(cmd.Verb) && cmd.TargetID == "" {
		return failed(wizard.StateIdle, FailBadRequest, "", string(cmd.Verb)+" needs an account id")
	}
	switch cmd.Verb {
	case command.Devices:
		return d.devices(ctx, cmd.TargetID)
	case command.Stats:
		return d.stats(ctx, cmd.TargetID)
	case command.AddDevice:
		return d.changeDevice(ctx, actor, cmd.TargetID, cmd.Arg(0), true)
	case command.DelDevice:
		return d.changeDevice(ctx, actor, cmd.TargetID, cmd.Arg(0), false)
	}
	action, ok := directory.ParseAction(string(cmd.Verb))
	if !ok {
		return failed(wizard.StateIdle, FailBadRequest, "", "unsupported command "+string(cmd.Verb))
	}
	return d.act(ctx, actor, action, cmd.TargetID)
}

func (d *Desk) list(ctx context.Context, pageArg string) Reply {
	page := 1
	if pageArg != "" {
		n, err := strconv.Atoi(pageArg)
		if err != nil || n < 1 {
			return failed(StateListing, FailBadRequest, "page", "page must be a positive integer")
		}
		page = n
	}
	all, err := d.accounts.LoadAll(ctx)
	if err != nil {
		return failed(StateListing, wizard.FailRemote, "", err.Error())
	}
	sort.SliceStable(all, func(i, j int) bool {
		return strings.ToLower(all[i].Username) < strings.ToLower(all[j].Username)
	})

	pages := (len(all) + PageSize - 1) / PageSize
	r := Reply{State: StateListing, Total: len(all), Page: page, Pages: pages}
	if len(all) == 0 {
		r.Message = "no accounts"
		return r
	}
	if page > pages {
		return failed(StateListing, FailBadRequest, "page", "page "+strconv.Itoa(page)+" is past the last page "+strconv.Itoa(pages))
	}
	lo := (page - 1) * PageSize
	hi := min(lo+PageSize, len(all))
	r.Entities = all[lo:hi]
	return r
}

func (d *Desk) search(ctx context.Context, raw string) Reply {
	term, err := search.ValidateTerm(raw)
	if err != nil {
		return failed(wizard.StateIdle, wizard.FailValidation, "term", err.Error())
	}
	all, err := d.accounts.LoadAll(ctx)
	if err != nil {
		return failed(wizard.StateIdle, wizard.FailRemote, "", err.Error())
	}
	found := search.Search(term, all)
	r := Reply{State: StateListing, Entities: found, Total: len(found)}
	if len(found) == 0 {
		r.Message = "no accounts match " + strconv.Quote(term)
	}
	return r
}

func (d *Desk) view(ctx context.Context, id string) Reply {
	if id == "" {
		return failed(wizard.StateIdle, FailBadRequest, "", "view needs an account id")
	}
	e, err := d.accounts.Load(ctx, id)
	if err != nil {
		return remoteReply(err)
	}
	return Reply{State: StateViewing, Entity: e}
}

// act runs one direct action and refreshes the cache: the entity always,
// plus the list snapshot since status and membership show in lists.
func (d *Desk) act(ctx context.Context, actor string, action directory.Action, id string) Reply {
	if id == "" {
		return failed(wizard.StateIdle, FailBadRequest, "", string(action)+" needs an account id")
	}
	if err := directory.Apply(ctx, d.client, action, id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			d.accounts.InvalidateOne(id)
		}
		d.log.Warn("account action failed", "action", action, "id", id, "error", err)
		return remoteReply(err)
	}
	if action.ChangesMembership() {
		d.accounts.InvalidateAll()
	} else {
		d.accounts.InvalidateOne(id)
		d.accounts.InvalidateList()
	}
	d.log.Info("account action applied", "action", action, "id", id, "actor", actor)
	d.recordAction(ctx, action, id, actor, false)

	r := Reply{State: StateViewing, Message: "account " + pastTense(action)}
	if action.ChangesMembership() {
		r.State = wizard.StateIdle
		return r
	}
	if e, err := d.accounts.Load(ctx, id); err == nil {
		r.Entity = e
	}
	return r
}

func (d *Desk) bulkApply(ctx context.Context, actor string, cmd command.Command) Reply {
	action, ok := directory.ParseAction(cmd.Arg(0))
	if !ok || !bulkActions[action] {
		return failed(wizard.StateIdle, FailBadRequest, "action", "bulk supports enable, disable and reset")
	}
	ids := cmd.Args[1:]
	if len(ids) == 0 {
		return failed(wizard.StateIdle, FailBadRequest, "", "bulk needs at least one id")
	}

	res := d.bulk.ApplyToAll(ctx, ids, func(ctx context.Context, id string) error {
		if err := directory.Apply(ctx, d.client, action, id); err != nil {
			return err
		}
		d.recordAction(ctx, action, id, actor, true)
		return nil
	})
	if res.Succeeded > 0 {
		d.accounts.InvalidateList()
	}
	return Reply{State: wizard.StateIdle, Bulk: summarize(action, res), Total: len(res.Outcomes)}
}

func summarize(action directory.Action, res bulk.Result) *BulkSummary {
	shown, more := res.Preview(bulk.PreviewLimit)
	return &BulkSummary{
		Action:    action,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Outcomes:  res.Outcomes,
		FailedIDs: shown,
		MoreFails: more,
	}
}

func (d *Desk) recordAction(ctx context.Context, action directory.Action, id, actor string, inBulk bool) {
	evt := event.NewAccountAction(action, id, actor, inBulk)
	if err := d.recorder.Record(ctx, evt); err != nil {
		d.log.Warn("recording event failed", "event_type", evt.EventType, "error", err)
	}
}

func remoteReply(err error) Reply {
	if errors.Is(err, directory.ErrNotFound) {
		return failed(wizard.StateIdle, wizard.FailNotFound, "", "account no longer exists")
	}
	return failed(wizard.StateIdle, wizard.FailRemote, "", err.Error())
}

func pastTense(a directory.Action) string {
	switch a {
	case directory.ActionEnable:
		return "enabled"
	case directory.ActionDisable:
		return "disabled"
	case directory.ActionResetTraffic:
		return "traffic reset"
	case directory.ActionRevoke:
		return "subscription revoked"
	case directory.ActionDelete:
		return "deleted"
	}
	return string(a)
}

func help(role auth.Role) string {
	lines := []string{
		"list [page]", "search <term>", "view <id>", "devices <id>", "stats <id>",
		"templates", "cancel",
	}
	if role.CanWrite() {
		lines = append(lines,
			"start_manual", "start_template", "choose_template <name> [customize]",
			"submit <value> (or just type it)", "skip", "use_template_value",
			"add_optional_fields", "finish",
			"edit <id>", "edit_field <field>", "extend <days>",
			"enable|disable|reset|revoke|delete <id>",
			"bulk <enable|disable|reset> <ids...>",
			"add_device <id> <hwid>", "del_device <id> <hwid>",
		)
	}
	return strings.Join(lines, "\n")
}
