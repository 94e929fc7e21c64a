// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package verifier

import (
	"github.com/juju/errors"

	"github.com/canonical/juju-verify/core/snapshot"
)

// cephTree is a queryable view of a CRUSH hierarchy as reported by the
// monitors' disk usage probe. Host buckets carry names matching machine
// hostnames, which is how targeted units are located in the tree.
type cephTree struct {
	nodes  []snapshot.OSDTreeNode
	byName map[string]int
}

func newCephTree(nodes []snapshot.OSDTreeNode) *cephTree {
	byName := make(map[string]int, len(nodes))
	for i, node := range nodes {
		byName[node.Name] = i
	}
	return &cephTree{nodes: nodes, byName: byName}
}

func (t *cephTree) node(name string) (snapshot.OSDTreeNode, error) {
	i, ok := t.byName[name]
	if !ok {
		return snapshot.OSDTreeNode{}, errors.NotFoundf("node %q in OSD tree", name)
	}
	return t.nodes[i], nil
}

// ancestor walks up the tree from node until it reaches a bucket of the
// required type.
func (t *cephTree) ancestor(node snapshot.OSDTreeNode, requiredType string) (snapshot.OSDTreeNode, error) {
	for _, candidate := range t.nodes {
		if !containsChild(candidate.Children, node.ID) {
			continue
		}
		if candidate.Type != requiredType {
			return t.ancestor(candidate, requiredType)
		}
		return candidate, nil
	}
	return snapshot.OSDTreeNode{}, errors.NotFoundf("%s ancestor of node %q", requiredType, node.Name)
}

// canRemoveHosts reports whether the named host buckets can be removed
// without exhausting their ancestor bucket. The space their data occupies
// must fit in the free space that remains in the ancestor once the hosts'
// own free space is gone.
func (t *cephTree) canRemoveHosts(hostnames []string, ancestorType string) (bool, error) {
	type usage struct {
		used  uint64
		avail uint64
	}
	byAncestor := make(map[int]usage)
	ancestors := make(map[int]snapshot.OSDTreeNode)
	for _, name := range hostnames {
		host, err := t.node(name)
		if err != nil {
			return false, errors.Trace(err)
		}
		if host.Type != "host" {
			return false, errors.NotValidf("node %q of type %q as a removal target", name, host.Type)
		}
		ancestor, err := t.ancestor(host, ancestorType)
		if err != nil {
			return false, errors.Trace(err)
		}
		ancestors[ancestor.ID] = ancestor
		u := byAncestor[ancestor.ID]
		u.used += host.KBUsed
		u.avail += host.KBAvail
		byAncestor[ancestor.ID] = u
	}

	for id, u := range byAncestor {
		if ancestors[id].KBAvail <= u.avail {
			return false, nil
		}
		remaining := ancestors[id].KBAvail - u.avail
		if remaining <= u.used {
			logger.Debugf("ancestor %q would keep %d kB free but needs to absorb %d kB",
				ancestors[id].Name, remaining, u.used)
			return false, nil
		}
	}
	return true, nil
}

func containsChild(children []int, id int) bool {
	for _, child := range children {
		if child == id {
			return true
		}
	}
	return false
}
