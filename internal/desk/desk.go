// Package desk is the entry point transports call. It authorizes the actor,
// loads the conversation's wizard session, dispatches the command to the
// wizard, cache, search or bulk runner, and persists the next session.
package desk

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/matthewbaird/accountdesk/internal/auth"
	"github.com/matthewbaird/accountdesk/internal/bulk"
	"github.com/matthewbaird/accountdesk/internal/command"
	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/event"
	"github.com/matthewbaird/accountdesk/internal/logger"
	"github.com/matthewbaird/accountdesk/internal/schema"
	"github.com/matthewbaird/accountdesk/internal/session"
	"github.com/matthewbaird/accountdesk/internal/templates"
	"github.com/matthewbaird/accountdesk/internal/wizard"
)

// PageSize is the number of accounts per list page.
const PageSize = 10

// Accounts is the cached directory view.
type Accounts interface {
	Load(ctx context.Context, id string) (*directory.Entity, error)
	LoadAll(ctx context.Context) ([]directory.Entity, error)
	InvalidateOne(id string)
	InvalidateList()
	InvalidateAll()
}

// Config wires a Desk.
type Config struct {
	Engine    *wizard.Engine
	Accounts  Accounts
	Client    directory.Client
	Sessions  session.Store
	Policy    *auth.Policy
	Templates *templates.Registry
	Bulk      *bulk.Runner
	Recorder  event.Recorder
	Logger    *logger.Logger
	Metrics   *Metrics
}

// Desk serves commands for many conversations.
type Desk struct {
	engine    *wizard.Engine
	accounts  Accounts
	client    directory.Client
	sessions  session.Store
	policy    *auth.Policy
	templates *templates.Registry
	bulk      *bulk.Runner
	recorder  event.Recorder
	log       *logger.Logger
	metrics   *Metrics
	now       func() time.Time

	// commands of one conversation run one at a time
	locks [64]sync.Mutex
}

// New validates cfg and builds a Desk.
func New(cfg Config) (*Desk, error) {
	switch {
	case cfg.Engine == nil:
		return nil, errors.New("desk: engine required")
	case cfg.Accounts == nil:
		return nil, errors.New("desk: accounts required")
	case cfg.Client == nil:
		return nil, errors.New("desk: directory client required")
	case cfg.Sessions == nil:
		return nil, errors.New("desk: session store required")
	case cfg.Policy == nil:
		return nil, errors.New("desk: policy required")
	case cfg.Templates == nil:
		return nil, errors.New("desk: templates required")
	}
	d := &Desk{
		engine:    cfg.Engine,
		accounts:  cfg.Accounts,
		client:    cfg.Client,
		sessions:  cfg.Sessions,
		policy:    cfg.Policy,
		templates: cfg.Templates,
		bulk:      cfg.Bulk,
		recorder:  cfg.Recorder,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}
	if d.log == nil {
		d.log = logger.NewNop()
	}
	d.log = d.log.With("component", "desk")
	if d.bulk == nil {
		d.bulk = bulk.NewRunner(cfg.Accounts, d.log)
	}
	if d.recorder == nil {
		d.recorder = event.Nop{}
	}
	return d, nil
}

// Role returns the actor's role under the configured policy.
func (d *Desk) Role(actor string) auth.Role { return d.policy.Role(actor) }

// Templates returns the template registry.
func (d *Desk) Templates() *templates.Registry { return d.templates }

// readVerbs are allowed to operators as well as admins.
var readVerbs = map[command.Verb]bool{
	command.List:      true,
	command.Search:    true,
	command.View:      true,
	command.Templates: true,
	command.Help:      true,
	command.Cancel:    true,
	command.Devices:   true,
	command.Stats:     true,
}

// wizardVerbs read and write the conversation's session.
var wizardVerbs = map[command.Verb]bool{
	command.StartManual:       true,
	command.StartTemplate:     true,
	command.ChooseTemplate:    true,
	command.Submit:            true,
	command.Skip:              true,
	command.UseTemplateValue:  true,
	command.AddOptionalFields: true,
	command.Finish:            true,
	command.Cancel:            true,
	command.Edit:              true,
	command.EditField:         true,
	command.Extend:            true,
}

// Handle runs one command for actor in conversation. An empty conversation
// id allows only stateless verbs.
func (d *Desk) Handle(ctx context.Context, actor, conversation string, cmd command.Command) Reply {
	start := time.Now()
	reply := d.handle(ctx, actor, conversation, cmd)
	d.metrics.observe(cmd.Verb, reply, time.Since(start))
	if reply.Failure != nil {
		d.log.Debug("command rejected",
			"verb", cmd.Verb, "actor", actor, "conversation", conversation,
			"kind", reply.Failure.Kind, "reason", reply.Failure.Reason)
	}
	return reply
}

// HandleText parses a typed line and runs it. While the conversation has a
// value prompt open, the whole line is the answer unless it starts with "/"
// or names a prompt control verb.
func (d *Desk) HandleText(ctx context.Context, actor, conversation, line string) Reply {
	parse := command.ParseText
	if conversation != "" && d.promptOpen(ctx, conversation) {
		parse = command.ParsePromptText
	}
	cmd, err := parse(line)
	if err != nil {
		return failed(wizard.StateIdle, FailBadRequest, "", err.Error())
	}
	return d.Handle(ctx, actor, conversation, cmd)
}

// promptOpen peeks at the stored session without taking the conversation
// lock; Handle takes it again before acting.
func (d *Desk) promptOpen(ctx context.Context, conversation string) bool {
	sess, ok, err := d.sessions.Get(ctx, conversation)
	if err != nil || !ok {
		return false
	}
	switch sess.Current() {
	case wizard.StateCollecting, wizard.StateEditValue:
		return true
	}
	return false
}

func (d *Desk) handle(ctx context.Context, actor, conversation string, cmd command.Command) Reply {
	role := d.policy.Role(actor)
	if !role.CanRead() {
		return failed(wizard.StateIdle, FailForbidden, "", "not authorized")
	}
	if !command.Known(cmd.Verb) {
		return failed(wizard.StateIdle, FailBadRequest, "", "unknown command "+strconv.Quote(string(cmd.Verb)))
	}
	if !readVerbs[cmd.Verb] && !role.CanWrite() {
		return failed(wizard.StateIdle, FailForbidden, "", "operators may only list, search and view")
	}

	if !wizardVerbs[cmd.Verb] {
		return d.stateless(ctx, actor, role, cmd)
	}
	if conversation == "" {
		return failed(wizard.StateIdle, FailBadRequest, "", "a conversation is required for "+string(cmd.Verb))
	}

	mu := d.lockFor(conversation)
	mu.Lock()
	defer mu.Unlock()

	sess, _, err := d.sessions.Get(ctx, conversation)
	if err != nil {
		d.log.Error("loading session failed", "conversation", conversation, "error", err)
		return failed(wizard.StateIdle, wizard.FailRemote, "", "session store unavailable")
	}

	step, ok := d.dispatch(ctx, sess, cmd)
	if !ok {
		return d.resumeWith(ctx, sess, failed(sess.Current(), FailBadRequest, "", badRequestReason(cmd)))
	}
	d.record(ctx, actor, sess, cmd, step)

	if step.Session.Active() {
		err = d.sessions.Put(ctx, conversation, step.Session)
	} else {
		err = d.sessions.Remove(ctx, conversation)
	}
	if err != nil {
		d.log.Error("saving session failed", "conversation", conversation, "error", err)
	}
	return fromStep(step)
}

// dispatch maps a wizard verb onto the engine. It reports false when the
// command's arguments are malformed.
func (d *Desk) dispatch(ctx context.Context, s wizard.Session, cmd command.Command) (wizard.Step, bool) {
	e := d.engine
	switch cmd.Verb {
	case command.StartManual:
		return e.StartManual(), true
	case command.StartTemplate:
		return e.StartTemplate(), true
	case command.ChooseTemplate:
		name := cmd.Arg(0)
		if name == "" {
			return wizard.Step{}, false
		}
		return e.ChooseTemplate(s, name, cmd.Arg(1) == command.Customize), true
	case command.Submit:
		return d.submit(ctx, s, cmd.Text), true
	case command.Skip:
		return e.Skip(ctx, s), true
	case command.UseTemplateValue:
		return e.UseTemplateValue(ctx, s), true
	case command.AddOptionalFields:
		return e.AddOptionalFields(ctx, s), true
	case command.Finish:
		return e.Finish(ctx, s), true
	case command.Cancel:
		return e.Cancel(s), true
	case command.Edit:
		if cmd.TargetID == "" {
			return wizard.Step{}, false
		}
		return e.StartEdit(ctx, cmd.TargetID), true
	case command.EditField:
		if cmd.Arg(0) == "" {
			return wizard.Step{}, false
		}
		return e.SelectEditField(ctx, s, cmd.Arg(0)), true
	case command.Extend:
		days, err := strconv.Atoi(cmd.Arg(0))
		if err != nil {
			return wizard.Step{}, false
		}
		return e.ExtendExpiration(ctx, s, days), true
	}
	return wizard.Step{}, false
}

// submit routes free text by where the session stands: a field value, an
// edit value, an edit field choice or a template name.
func (d *Desk) submit(ctx context.Context, s wizard.Session, text string) wizard.Step {
	switch s.Current() {
	case wizard.StateEditValue:
		return d.engine.SubmitEdit(ctx, s, text)
	case wizard.StateEditSelect:
		return d.engine.SelectEditField(ctx, s, text)
	case wizard.StateTemplateSelect:
		return d.engine.ChooseTemplate(s, text, false)
	}
	return d.engine.Submit(ctx, s, text)
}

// resumeWith attaches the current prompt to a rejected command so the
// conversation can carry on where it was.
func (d *Desk) resumeWith(ctx context.Context, s wizard.Session, r Reply) Reply {
	if !s.Active() {
		return r
	}
	out := fromStep(d.engine.Resume(ctx, s))
	out.Failure = r.Failure
	return out
}

func badRequestReason(cmd command.Command) string {
	switch cmd.Verb {
	case command.ChooseTemplate:
		return "choose_template needs a template name"
	case command.Edit:
		return "edit needs an account id"
	case command.EditField:
		return "edit_field needs a field name"
	case command.Extend:
		return "extend needs a number of days"
	}
	return "malformed " + string(cmd.Verb)
}

// record writes the audit event for a step that changed the directory.
func (d *Desk) record(ctx context.Context, actor string, before wizard.Session, cmd command.Command, step wizard.Step) {
	var evt event.DomainEvent
	switch {
	case step.Created && step.Entity != nil:
		evt = event.NewAccountCreated(step.Entity, before.SourceTemplate, actor)
	case step.Updated && step.Entity != nil:
		key := before.EditField
		if cmd.Verb == command.Extend || key == "" {
			key = schema.FieldExpireAt
		}
		changes := directory.Attributes{}
		if v, ok := step.Entity.Field(key); ok {
			changes[key] = v
		}
		evt = event.NewAccountUpdated(step.Entity.UUID, changes, actor)
	default:
		return
	}
	if err := d.recorder.Record(ctx, evt); err != nil {
		d.log.Warn("recording event failed", "event_type", evt.EventType, "error", err)
	}
}

func (d *Desk) lockFor(conversation string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversation))
	return &d.locks[h.Sum32()%uint32(len(d.locks))]
}
