package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"start_manual", Command{Verb: StartManual}},
		{"/START_TEMPLATE", Command{Verb: StartTemplate}},
		{"choose_template Trial customize", Command{Verb: ChooseTemplate, Args: []string{"Trial", "customize"}}},
		{"submit  hello world ", Command{Verb: Submit, Text: "hello world"}},
		{"alice_2024", Command{Verb: Submit, Text: "alice_2024"}},
		{"2026-05-01", Command{Verb: Submit, Text: "2026-05-01"}},
		{"edit abc-123", Command{Verb: Edit, TargetID: "abc-123"}},
		{"edit_field tag", Command{Verb: EditField, Args: []string{"tag"}}},
		{"extend 30", Command{Verb: Extend, Args: []string{"30"}}},
		{"list 2", Command{Verb: List, Args: []string{"2"}}},
		{"search  john doe", Command{Verb: Search, Text: "john doe"}},
		{"disable u-1", Command{Verb: Disable, TargetID: "u-1"}},
		{"bulk enable a,b c", Command{Verb: Bulk, Args: []string{"enable", "a", "b", "c"}}},
		{"help", Command{Verb: Help}},
		{"devices u-1", Command{Verb: Devices, TargetID: "u-1"}},
		{"add_device u-1 HW-42", Command{Verb: AddDevice, TargetID: "u-1", Args: []string{"HW-42"}}},
		{"del_device u-1 HW-42", Command{Verb: DelDevice, TargetID: "u-1", Args: []string{"HW-42"}}},
		{"stats u-1", Command{Verb: Stats, TargetID: "u-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseText(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseText_Errors(t *testing.T) {
	for _, line := range []string{"", "   ", "view", "delete  ", "bulk enable"} {
		_, err := ParseText(line)
		assert.Error(t, err, line)
	}
}

func TestCallback(t *testing.T) {
	tests := []struct {
		cmd     Command
		payload string
	}{
		{Command{Verb: Skip}, "skip"},
		{Command{Verb: Enable, TargetID: "u-1"}, "enable:u-1"},
		{Command{Verb: ChooseTemplate, Args: []string{"Trial", Customize}}, "choose_template::Trial,customize"},
		{Command{Verb: Bulk, Args: []string{"reset", "a", "b"}}, "bulk::reset,a,b"},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.payload, Callback(tt.cmd))
			got, err := ParseCallback(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, got)
		})
	}

	_, err := ParseCallback("launch:x")
	assert.Error(t, err)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "edit abc", Command{Verb: Edit, TargetID: "abc"}.String())
	assert.Equal(t, "submit hi there", Command{Verb: Submit, Text: "hi there"}.String())
}

func TestKnownAndTargeted(t *testing.T) {
	assert.True(t, Known(Finish))
	assert.False(t, Known("launch"))
	assert.True(t, Targeted(Delete))
	assert.False(t, Targeted(Bulk))
}

func TestParsePromptText(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"Reset weekly plan", Command{Verb: Submit, Text: "Reset weekly plan"}},
		{"Delete after trial", Command{Verb: Submit, Text: "Delete after trial"}},
		{"List price customer", Command{Verb: Submit, Text: "List price customer"}},
		{"view u-1", Command{Verb: Submit, Text: "view u-1"}},
		{"skip", Command{Verb: Skip}},
		{" Cancel ", Command{Verb: Cancel}},
		{"finish", Command{Verb: Finish}},
		{"use_template_value", Command{Verb: UseTemplateValue}},
		{"add_optional_fields", Command{Verb: AddOptionalFields}},
		{"skip this one", Command{Verb: Submit, Text: "skip this one"}},
		{"/view u-1", Command{Verb: View, TargetID: "u-1"}},
		{"/cancel", Command{Verb: Cancel}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParsePromptText(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePromptText("  ")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = ParsePromptText("/view")
	assert.Error(t, err)
}
