// Package command defines the verbs a conversation can send to the desk and
// parses them from typed lines and button payloads.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// Verb names a desk operation.
type Verb string

const (
	StartManual       Verb = "start_manual"
	StartTemplate     Verb = "start_template"
	ChooseTemplate    Verb = "choose_template"
	Submit            Verb = "submit"
	Skip              Verb = "skip"
	UseTemplateValue  Verb = "use_template_value"
	AddOptionalFields Verb = "add_optional_fields"
	Finish            Verb = "finish"
	Cancel            Verb = "cancel"
	Edit              Verb = "edit"
	EditField         Verb = "edit_field"
	Extend            Verb = "extend"
	List              Verb = "list"
	Search            Verb = "search"
	View              Verb = "view"
	Enable            Verb = "enable"
	Disable           Verb = "disable"
	Reset             Verb = "reset"
	Revoke            Verb = "revoke"
	Delete            Verb = "delete"
	Bulk              Verb = "bulk"
	Devices           Verb = "devices"
	AddDevice         Verb = "add_device"
	DelDevice         Verb = "del_device"
	Stats             Verb = "stats"
	Templates         Verb = "templates"
	Help              Verb = "help"
)

// Customize is the choose_template argument that keeps prompting after the
// template is applied.
const Customize = "customize"

var known = map[Verb]bool{
	StartManual: true, StartTemplate: true, ChooseTemplate: true, Submit: true,
	Skip: true, UseTemplateValue: true, AddOptionalFields: true, Finish: true,
	Cancel: true, Edit: true, EditField: true, Extend: true, List: true,
	Search: true, View: true, Enable: true, Disable: true, Reset: true,
	Revoke: true, Delete: true, Bulk: true, Templates: true, Help: true,
	Devices: true, AddDevice: true, DelDevice: true, Stats: true,
}

// Known reports whether v is a desk verb.
func Known(v Verb) bool { return known[v] }

// targeted verbs take an account id as their first argument.
var targeted = map[Verb]bool{
	Edit: true, View: true, Enable: true, Disable: true, Reset: true, Revoke: true, Delete: true,
	Devices: true, AddDevice: true, DelDevice: true, Stats: true,
}

// Targeted reports whether the verb acts on one account id.
func Targeted(v Verb) bool { return targeted[v] }

// Command is one request from a conversation.
type Command struct {
	Verb     Verb     `json:"verb"`
	TargetID string   `json:"target,omitempty"`
	Args     []string `json:"args,omitempty"`
	Text     string   `json:"text,omitempty"`
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

func (c Command) String() string {
	parts := []string{string(c.Verb)}
	if c.TargetID != "" {
		parts = append(parts, c.TargetID)
	}
	parts = append(parts, c.Args...)
	if c.Text != "" {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, " ")
}

var ErrEmpty = errors.New("empty command")

// ParseText turns a typed line into a Command. A line that does not start
// with a known verb is free-form input and becomes a submit of the whole
// line. A leading "/" on the verb is ignored.
func ParseText(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmpty
	}
	head, rest, _ := strings.Cut(line, " ")
	verb := Verb(strings.ToLower(strings.TrimPrefix(head, "/")))
	rest = strings.TrimSpace(rest)
	if !known[verb] {
		return Command{Verb: Submit, Text: line}, nil
	}

	cmd := Command{Verb: verb}
	switch {
	case verb == Submit || verb == Search:
		cmd.Text = rest
	case targeted[verb]:
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return Command{}, fmt.Errorf("%s needs an account id", verb)
		}
		cmd.TargetID = fields[0]
		cmd.Args = fields[1:]
	case verb == Bulk:
		fields := splitIDs(rest)
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("bulk needs an action and at least one id")
		}
		cmd.Args = fields
	default:
		cmd.Args = strings.Fields(rest)
	}
	if len(cmd.Args) == 0 {
		cmd.Args = nil
	}
	return cmd, nil
}

// promptControl verbs steer an open prompt instead of answering it.
var promptControl = map[Verb]bool{
	Skip: true, Cancel: true, Finish: true, UseTemplateValue: true, AddOptionalFields: true,
}

// ParsePromptText parses a line typed while a prompt is waiting for a value.
// The whole line is the answer unless it starts with "/" or is exactly one
// of the prompt control verbs.
func ParsePromptText(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmpty
	}
	if strings.HasPrefix(line, "/") {
		return ParseText(line)
	}
	if v := Verb(strings.ToLower(line)); promptControl[v] {
		return Command{Verb: v}, nil
	}
	return Command{Verb: Submit, Text: line}, nil
}

// splitIDs accepts whitespace or comma separated lists.
func splitIDs(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

const sep = ":"

// Callback renders cmd as a compact button payload: verb, target and
// comma-joined args separated by colons. Text is not carried.
func Callback(cmd Command) string {
	s := string(cmd.Verb)
	if cmd.TargetID == "" && len(cmd.Args) == 0 {
		return s
	}
	s += sep + cmd.TargetID
	if len(cmd.Args) > 0 {
		s += sep + strings.Join(cmd.Args, ",")
	}
	return s
}

// ParseCallback reverses Callback.
func ParseCallback(payload string) (Command, error) {
	parts := strings.SplitN(payload, sep, 3)
	verb := Verb(parts[0])
	if !known[verb] {
		return Command{}, fmt.Errorf("unknown callback verb %q", parts[0])
	}
	cmd := Command{Verb: verb}
	if len(parts) > 1 {
		cmd.TargetID = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		cmd.Args = strings.Split(parts[2], ",")
	}
	return cmd, nil
}
