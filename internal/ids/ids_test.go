package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkspaceID(t *testing.T) {
	ws, err := ParseWorkspaceID("  My-Workspace.01  ")
	require.NoError(t, err)
	assert.Equal(t, WorkspaceID("my-workspace.01"), ws)

	_, err = ParseWorkspaceID("")
	assert.Error(t, err)

	_, err = ParseWorkspaceID("has a space")
	assert.Error(t, err)

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	_, err = ParseWorkspaceID(string(long))
	assert.Error(t, err)
}

func TestParseNodeIDKeepsUntrimmedValue(t *testing.T) {
	// Resolved Open Question: validation runs on the trimmed value, but
	// the stored/returned value is the untrimmed original.
	n, err := ParseNodeID("  CARD-abc  ")
	require.NoError(t, err)
	assert.Equal(t, NodeID("  CARD-abc  "), n)

	_, err = ParseNodeID("bad|pipe")
	assert.Error(t, err)

	_, err = ParseNodeID("\x01control")
	assert.Error(t, err)

	_, err = ParseNodeID("   ")
	assert.Error(t, err)
}

func TestStepPathRoundTrip(t *testing.T) {
	p, err := ParseStepPath("s:1.2.3")
	require.NoError(t, err)
	assert.Equal(t, StepPath{1, 2, 3}, p)
	assert.Equal(t, "1.2.3", p.String())
	assert.Equal(t, "s:1.2.3", p.Arg())
	assert.Equal(t, 3, p.Depth())
	assert.Equal(t, StepPath{1, 2}, p.Parent())
	assert.Equal(t, StepPath{1, 2, 3, 4}, p.Child(4))

	_, err = ParseStepPath("1.x.3")
	assert.Error(t, err)

	_, err = ParseStepPath("1.0")
	assert.Error(t, err)
}

func TestEventIDRoundTrip(t *testing.T) {
	id := NewEventID(42)
	assert.Equal(t, EventID("evt_0000000000000042"), id)
	seq, err := id.Seq()
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	_, err = EventID("evt_notanumber").Seq()
	assert.Error(t, err)
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		in   string
		kind RefKind
	}{
		{"CARD-001", RefCard},
		{"TASK-001", RefTask},
		{"PLAN-001", RefPlan},
		{"JOB-001", RefJob},
		{"SLC-001", RefSlice},
		{"a:auth-flow", RefAnchor},
		{"runner:r1", RefRunner},
		{"artifact://jobs/JOB-001/log", RefJobArtifact},
		{"notes@42", RefDocEntry},
		{"JOB-001@7", RefJobEvent},
	}
	for _, c := range cases {
		ref, err := ParseRef(c.in)
		require.NoErrorf(t, err, "parsing %q", c.in)
		assert.Equalf(t, c.kind, ref.Kind, "kind for %q", c.in)
		assert.Equal(t, c.in, ref.String())
	}

	_, err := ParseRef("garbage")
	assert.Error(t, err)

	_, err = ParseRef("")
	assert.Error(t, err)
}
