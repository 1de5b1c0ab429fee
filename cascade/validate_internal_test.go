package cascade

import "testing"

// TestCheckSinglePathDetectsThreeMeshCycle builds a cascade no public
// constructor can produce (AddMesh only ever links a new node to one
// existing one), but that a repair bug or future caller could still hand
// to Validate: three two-node meshes M1={A,B}, M2={A,C}, M3={B,C}, each
// individually complete and the whole graph connected, but forming a
// triangle at the mesh level — A and C reachable both directly and via B,
// violating invariant 5's single-path requirement. Every node here
// bridges exactly two meshes, so whichever order checkSinglePath's map
// iteration visits them in, the third edge processed always closes the
// triangle; this must be rejected deterministically, not only on some
// map-iteration orders.
func TestCheckSinglePathDetectsThreeMeshCycle(t *testing.T) {
	c := New()
	c.nodes["A"] = &Node{ID: "A", Relays: make(map[string]Link)}
	c.nodes["B"] = &Node{ID: "B", Relays: make(map[string]Link)}
	c.nodes["C"] = &Node{ID: "C", Relays: make(map[string]Link)}

	link := func(a, b, mesh string) {
		c.nodes[a].Relays[b] = Link{PeerID: b, MeshID: mesh}
		c.nodes[b].Relays[a] = Link{PeerID: a, MeshID: mesh}
	}
	link("A", "B", "M1")
	link("A", "C", "M2")
	link("B", "C", "M3")

	if err := c.Validate(); err == nil {
		t.Fatal("Validate accepted a three-mesh cycle between A, B, and C")
	}
}
