// Package cascade implements the multi-bridge topology graph of spec.md
// §3/§4.6: a tree-of-meshes where fully-connected meshes are joined by
// single relay links, with operations to grow, shrink, and repair it while
// preserving connectivity.
package cascade

import "fmt"

// Link is one relay edge from a node to a peer node, within the named mesh.
type Link struct {
	PeerID string
	MeshID string
}

// Node is a CascadeNode (spec.md §3): a bridge session viewed as a graph
// node, with its relay links to other nodes.
type Node struct {
	ID     string
	Relays map[string]Link // peer id -> Link
}

// RepairLink is one (a, b, meshId) triple a repair function returns to
// reconnect fragments severed by RemoveNode.
type RepairLink struct {
	A, B, MeshID string
}

// RepairFunc computes the links needed to restore connectivity after
// removing a node that bridged two or more meshes. fragments lists, for
// each mesh the removed node belonged to, the surviving node ids in that
// mesh.
type RepairFunc func(fragments [][]string) []RepairLink

// Cascade is the graph of one conference's bridge topology.
type Cascade struct {
	nodes map[string]*Node
}

// New constructs an empty Cascade.
func New() *Cascade {
	return &Cascade{nodes: make(map[string]*Node)}
}

// Size returns the number of nodes currently in the cascade.
func (c *Cascade) Size() int { return len(c.nodes) }

func (c *Cascade) meshMembers(meshID string) []string {
	var members []string
	for id, n := range c.nodes {
		for _, link := range n.Relays {
			if link.MeshID == meshID {
				members = append(members, id)
				break
			}
		}
	}
	return members
}

// AddNodeToMesh implements spec.md §4.6's addNodeToMesh: if the cascade is
// empty, n is inserted alone; if it has exactly one node, n is linked to
// that sole node under meshID; otherwise meshID must name an existing mesh
// and n is linked bidirectionally to every node currently in it.
func (c *Cascade) AddNodeToMesh(n, meshID string) error {
	if _, exists := c.nodes[n]; exists {
		return fmt.Errorf("cascade: node %q already present", n)
	}
	node := &Node{ID: n, Relays: make(map[string]Link)}

	switch c.Size() {
	case 0:
		c.nodes[n] = node
		return nil
	case 1:
		var sole string
		for id := range c.nodes {
			sole = id
		}
		c.nodes[n] = node
		c.link(n, sole, meshID)
		return nil
	default:
		members := c.meshMembers(meshID)
		if len(members) == 0 {
			return fmt.Errorf("cascade: mesh %q does not exist", meshID)
		}
		c.nodes[n] = node
		for _, peer := range members {
			c.link(n, peer, meshID)
		}
		return nil
	}
}

// link wires a bidirectional relay between a and b under meshID. It does
// nothing if either node is absent from c.nodes, so callers here insert the
// new node before linking it.
func (c *Cascade) link(a, b, meshID string) {
	an, aok := c.nodes[a]
	bn, bok := c.nodes[b]
	if !aok || !bok {
		return
	}
	an.Relays[b] = Link{PeerID: b, MeshID: meshID}
	bn.Relays[a] = Link{PeerID: a, MeshID: meshID}
}

// AddMesh implements spec.md §4.6's addMesh: existing must already be
// present, new must be absent, and meshID must be unused; creates a single
// link between them forming a brand-new mesh of size two.
func (c *Cascade) AddMesh(existing, newID, meshID string) error {
	if _, ok := c.nodes[existing]; !ok {
		return fmt.Errorf("cascade: node %q does not exist", existing)
	}
	if _, ok := c.nodes[newID]; ok {
		return fmt.Errorf("cascade: node %q already present", newID)
	}
	if len(c.meshMembers(meshID)) > 0 {
		return fmt.Errorf("cascade: mesh %q already in use", meshID)
	}
	c.nodes[newID] = &Node{ID: newID, Relays: make(map[string]Link)}
	c.link(existing, newID, meshID)
	return nil
}

// RemoveNode drops n and every backlink to it. If n bridged two or more
// distinct meshes, repair is invoked with each mesh's surviving members and
// the returned RepairLinks are added to reconnect the severed fragments.
func (c *Cascade) RemoveNode(n string, repair RepairFunc) error {
	node, ok := c.nodes[n]
	if !ok {
		return fmt.Errorf("cascade: node %q does not exist", n)
	}

	// Group n's peers by mesh before the backlinks go: once they are
	// deleted, the survivor of a two-node mesh no longer shows up in it.
	byMesh := make(map[string][]string)
	for peerID, link := range node.Relays {
		byMesh[link.MeshID] = append(byMesh[link.MeshID], peerID)
	}

	delete(c.nodes, n)
	for peerID := range node.Relays {
		if peer, ok := c.nodes[peerID]; ok {
			delete(peer.Relays, n)
		}
	}

	if len(byMesh) >= 2 && repair != nil {
		var fragments [][]string
		for _, members := range byMesh {
			fragments = append(fragments, members)
		}
		for _, rl := range repair(fragments) {
			c.link(rl.A, rl.B, rl.MeshID)
		}
	}
	return nil
}

// GetNodesBehind implements spec.md §4.6's getNodesBehind: a BFS from
// toward, not crossing back through the mesh that reached toward from
// from. Returns every node reachable that way, including toward itself.
func (c *Cascade) GetNodesBehind(from, toward string) []string {
	start, ok := c.nodes[toward]
	if !ok {
		return nil
	}
	blockedMesh := ""
	if fromLink, ok := start.Relays[from]; ok {
		blockedMesh = fromLink.MeshID
	}

	visited := map[string]bool{toward: true}
	queue := []string{toward}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curNode := c.nodes[cur]
		for peerID, link := range curNode.Relays {
			if cur == toward && peerID == from {
				continue
			}
			if cur == toward && link.MeshID == blockedMesh {
				continue
			}
			if visited[peerID] {
				continue
			}
			visited[peerID] = true
			queue = append(queue, peerID)
		}
	}

	out := make([]string, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	return out
}
