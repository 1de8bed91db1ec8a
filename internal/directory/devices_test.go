package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeUsage(t *testing.T) {
	got := SummarizeUsage([]UsageEntry{
		{NodeUUID: "n-1", NodeName: "Frankfurt", Total: 10},
		{NodeUUID: "n-2", Total: 40},
		{NodeUUID: "n-1", NodeName: "Frankfurt", Total: 20},
	})
	assert.Equal(t, []NodeUsage{
		{NodeUUID: "n-2", NodeName: UnknownNode, Total: 40},
		{NodeUUID: "n-1", NodeName: "Frankfurt", Total: 30},
	}, got)
	assert.Empty(t, SummarizeUsage(nil))
}
