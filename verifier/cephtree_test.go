// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package verifier_test

import (
	"github.com/juju/juju/core/status"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/juju-verify/core/check"
	"github.com/canonical/juju-verify/core/snapshot"
)

type cephTreeSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&cephTreeSuite{})

// osdTree builds a root bucket over two host buckets. Free space on the
// root is the sum of its hosts' free space.
func osdTree(host0Used, host0Avail, host1Used, host1Avail uint64) []snapshot.OSDTreeNode {
	return []snapshot.OSDTreeNode{
		{ID: -1, Name: "default", Type: "root", TypeID: 10,
			KBUsed: host0Used + host1Used, KBAvail: host0Avail + host1Avail,
			Children: []int{-2, -3}},
		{ID: -2, Name: "host0", Type: "host", TypeID: 1,
			KBUsed: host0Used, KBAvail: host0Avail, Children: []int{0}},
		{ID: -3, Name: "host1", Type: "host", TypeID: 1,
			KBUsed: host1Used, KBAvail: host1Avail, Children: []int{1}},
		{ID: 0, Name: "osd.0", Type: "osd", TypeID: 0},
		{ID: 1, Name: "osd.1", Type: "osd", TypeID: 0},
	}
}

func availabilityZoneResult(c *gc.C, nodes []snapshot.OSDTreeNode, targets int) check.Result {
	app := makeApp("ceph-osd", "ceph-osd", status.Active, status.Active)
	snap := &snapshot.Snapshot{
		Storage: snapshot.StorageState{
			OSDTrees: map[string][]snapshot.OSDTreeNode{"ceph-osd": nodes},
		},
	}
	return getCheck(c, "ceph-osd", "availability-zone").Verify(request(app, snap, targets))
}

func (s *cephTreeSuite) TestRemovableWhenSpaceRemains(c *gc.C) {
	// Removing host0 takes away 200kB of free space and requires the
	// remaining 800kB to absorb 400kB of data.
	result := availabilityZoneResult(c, osdTree(400, 200, 2000, 800), 1)
	c.Check(result.Outcome, gc.Equals, check.Pass)
}

func (s *cephTreeSuite) TestNotRemovableWhenSpaceExhausted(c *gc.C) {
	// Removing host0 leaves 300kB free to absorb 400kB of data.
	result := availabilityZoneResult(c, osdTree(400, 200, 2000, 300), 1)
	c.Check(result.Outcome, gc.Equals, check.Fail)
	c.Check(result.Reason, jc.Contains, "without enough free space")
}

func (s *cephTreeSuite) TestUnknownHostIsUnknown(c *gc.C) {
	nodes := osdTree(1, 1000, 1, 1000)
	nodes[1].Name = "elsewhere"
	result := availabilityZoneResult(c, nodes, 1)
	c.Check(result.Outcome, gc.Equals, check.Unknown)
	c.Check(result.Reason, jc.Contains, "cannot evaluate OSD tree")
}

func (s *cephTreeSuite) TestMissingTreeIsUnknown(c *gc.C) {
	app := makeApp("ceph-osd", "ceph-osd", status.Active)
	snap := &snapshot.Snapshot{Storage: snapshot.StorageState{OSDTrees: map[string][]snapshot.OSDTreeNode{}}}
	result := getCheck(c, "ceph-osd", "availability-zone").Verify(request(app, snap, 1))
	c.Check(result.Outcome, gc.Equals, check.Unknown)
}

func (s *cephTreeSuite) TestMissingHostnameIsUnknown(c *gc.C) {
	app := makeApp("ceph-osd", "ceph-osd", status.Active)
	app.Units[0].Hostname = ""
	snap := &snapshot.Snapshot{
		Storage: snapshot.StorageState{
			OSDTrees: map[string][]snapshot.OSDTreeNode{"ceph-osd": osdTree(1, 1, 1, 1)},
		},
	}
	result := getCheck(c, "ceph-osd", "availability-zone").Verify(request(app, snap, 1))
	c.Check(result.Outcome, gc.Equals, check.Unknown)
}

func (s *cephTreeSuite) TestBothHostsRemovedNeverFits(c *gc.C) {
	// Removing every host leaves the root no free space at all.
	result := availabilityZoneResult(c, osdTree(400, 200, 400, 200), 2)
	c.Check(result.Outcome, gc.Equals, check.Fail)
}
