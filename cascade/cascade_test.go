package cascade_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/cascade"
)

func TestAddNodeToMeshAndValidate(t *testing.T) {
	c := cascade.New()
	require.NoError(t, c.AddNodeToMesh("A", "M1"))
	require.NoError(t, c.AddNodeToMesh("B", "M1"))
	require.NoError(t, c.AddNodeToMesh("C", "M1"))
	require.NoError(t, c.Validate())
	assert.Equal(t, 3, c.Size())
}

func TestAddMesh(t *testing.T) {
	c := cascade.New()
	require.NoError(t, c.AddNodeToMesh("A", "M1"))
	require.NoError(t, c.AddNodeToMesh("B", "M1"))
	require.NoError(t, c.AddMesh("B", "C", "M2"))
	require.NoError(t, c.Validate())

	behind := c.GetNodesBehind("A", "B")
	sort.Strings(behind)
	assert.Equal(t, []string{"B", "C"}, behind)
}

// TestCascadeRemovalRepair exercises spec.md §8 scenario S5: nodes A,B,C,D
// with meshes {A,B} and {C,D} joined by a single link B-C. Removing B must
// invalidate the cascade until a repair reconnects it.
func TestCascadeRemovalRepair(t *testing.T) {
	c := cascade.New()
	require.NoError(t, c.AddNodeToMesh("A", "M1"))
	require.NoError(t, c.AddNodeToMesh("B", "M1"))
	require.NoError(t, c.AddMesh("B", "C", "M2"))
	require.NoError(t, c.AddMesh("C", "D", "M3"))
	require.NoError(t, c.Validate())

	err := c.RemoveNode("B", func(fragments [][]string) []cascade.RepairLink {
		// One surviving node in each fragment suffices to reconnect.
		return []cascade.RepairLink{{A: "A", B: "C", MeshID: "repair"}}
	})
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	behind := c.GetNodesBehind("A", "C")
	sort.Strings(behind)
	assert.Equal(t, []string{"C", "D"}, behind)
}

func TestValidateAcceptsTwoNodeMesh(t *testing.T) {
	c := cascade.New()
	require.NoError(t, c.AddNodeToMesh("A", "M1"))
	require.NoError(t, c.AddNodeToMesh("B", "M1"))
	require.NoError(t, c.Validate())
}
