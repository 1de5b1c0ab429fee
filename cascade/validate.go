package cascade

import "fmt"

// Validate checks every invariant from spec.md §3/§4.6: symmetric links,
// meshId agreement, mesh completeness, connectedness, and no self-links.
func (c *Cascade) Validate() error {
	for id, n := range c.nodes {
		for peerID, link := range n.Relays {
			if peerID == id {
				return fmt.Errorf("cascade: node %q has a self-link", id)
			}
			peer, ok := c.nodes[peerID]
			if !ok {
				return fmt.Errorf("cascade: node %q links to unknown node %q", id, peerID)
			}
			back, ok := peer.Relays[id]
			if !ok {
				return fmt.Errorf("cascade: link %q->%q has no symmetric backlink", id, peerID)
			}
			if back.MeshID != link.MeshID {
				return fmt.Errorf("cascade: asymmetric meshId between %q and %q", id, peerID)
			}
		}
	}

	meshes := make(map[string]map[string]bool)
	for id, n := range c.nodes {
		for _, link := range n.Relays {
			if meshes[link.MeshID] == nil {
				meshes[link.MeshID] = make(map[string]bool)
			}
			meshes[link.MeshID][id] = true
		}
	}
	for meshID, members := range meshes {
		for a := range members {
			for b := range members {
				if a == b {
					continue
				}
				link, ok := c.nodes[a].Relays[b]
				if !ok || link.MeshID != meshID {
					return fmt.Errorf("cascade: mesh %q is not fully connected (missing %q<->%q)", meshID, a, b)
				}
			}
		}
	}

	if err := c.checkConnected(); err != nil {
		return err
	}
	return c.checkSinglePath()
}

func (c *Cascade) checkConnected() error {
	if len(c.nodes) == 0 {
		return nil
	}
	var start string
	for id := range c.nodes {
		start = id
		break
	}
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for peerID := range c.nodes[cur].Relays {
			if !visited[peerID] {
				visited[peerID] = true
				queue = append(queue, peerID)
			}
		}
	}
	if len(visited) != len(c.nodes) {
		return fmt.Errorf("cascade: graph is not connected (%d of %d nodes reachable)", len(visited), len(c.nodes))
	}
	return nil
}

// checkSinglePath verifies there is exactly one path between any two nodes
// when traversal through a single mesh counts as one hop: contracting each
// mesh to a single super-node must yield a tree (no cycles). A node that
// bridges two meshes (the normal case: an AddMesh "existing" node is a
// member of both its original mesh and the new two-node mesh) is the
// inter-mesh edge connecting those two super-nodes; a node can bridge more
// than two meshes if it was reused as the "existing" side of AddMesh more
// than once.
func (c *Cascade) checkSinglePath() error {
	// memberMeshes collects every distinct MeshID each node belongs to, not
	// just the last one seen — a bridging node's relays span two (or more)
	// meshes simultaneously, so overwriting per node loses one of them.
	memberMeshes := make(map[string]map[string]bool)
	meshSet := make(map[string]bool)
	for id, n := range c.nodes {
		for _, link := range n.Relays {
			if memberMeshes[id] == nil {
				memberMeshes[id] = make(map[string]bool)
			}
			memberMeshes[id][link.MeshID] = true
			meshSet[link.MeshID] = true
		}
	}
	if len(meshSet) <= 1 {
		return nil
	}

	parent := make(map[string]string, len(meshSet))
	var find func(string) string
	find = func(x string) string {
		if _, ok := parent[x]; !ok {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	// Every mesh a bridging node belongs to is connected to every other
	// mesh that same node belongs to (a star centered on one of them,
	// arbitrarily chosen); union-find over mesh IDs then contracts each
	// complete mesh to its single super-node. Uniting two mesh IDs that
	// are already in the same component means some other node (or an
	// illegal extra direct link) already connects them — a second path,
	// which is exactly the cycle this check must reject.
	for _, meshes := range memberMeshes {
		if len(meshes) < 2 {
			continue
		}
		var pivot string
		for m := range meshes {
			pivot = m
			break
		}
		for m := range meshes {
			if m == pivot {
				continue
			}
			ra, rb := find(pivot), find(m)
			if ra == rb {
				return fmt.Errorf("cascade: more than one path exists between some pair of nodes")
			}
			parent[ra] = rb
		}
	}
	return nil
}
