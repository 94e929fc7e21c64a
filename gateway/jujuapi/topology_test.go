// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package jujuapi

import (
	"github.com/juju/juju/core/status"
	"github.com/juju/juju/rpc/params"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/juju-verify/core/snapshot"
)

type topologySuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&topologySuite{})

func (s *topologySuite) TestBuildTopology(c *gc.C) {
	full := &params.FullStatus{
		Model: params.ModelStatusInfo{Name: "test-model"},
		Machines: map[string]params.MachineStatus{
			"0": {Hostname: "host0"},
			"1": {Hostname: "host1"},
		},
		Applications: map[string]params.ApplicationStatus{
			"ceph-osd": {
				Charm: "ch:amd64/jammy/ceph-osd-513",
				Units: map[string]params.UnitStatus{
					"ceph-osd/1": {
						Machine:        "1",
						WorkloadStatus: params.DetailedStatus{Status: "active"},
						AgentStatus:    params.DetailedStatus{Status: "idle"},
					},
					"ceph-osd/0": {
						Machine:        "0",
						WorkloadStatus: params.DetailedStatus{Status: "blocked"},
						AgentStatus:    params.DetailedStatus{Status: "idle"},
					},
				},
			},
		},
	}
	snap, err := buildTopology(full)
	c.Assert(err, jc.ErrorIsNil)

	c.Check(snap.Model, gc.Equals, "test-model")
	app := snap.Applications["ceph-osd"]
	c.Assert(app, gc.NotNil)
	c.Check(app.CharmName, gc.Equals, "ceph-osd")
	c.Check(snapshot.UnitNames(app.Units), jc.DeepEquals, []string{"ceph-osd/0", "ceph-osd/1"})
	c.Check(app.Units[0].WorkloadStatus, gc.Equals, status.Blocked)
	c.Check(app.Units[0].Hostname, gc.Equals, "host0")
	c.Check(app.Units[1].Machine, gc.Equals, "1")
	c.Check(snap.Machines["1"].Units, jc.DeepEquals, []string{"ceph-osd/1"})
}

func (s *topologySuite) TestBuildTopologySubordinates(c *gc.C) {
	// Subordinates carry no machine of their own in status; they are
	// attributed to their own application on the principal's machine.
	full := &params.FullStatus{
		Model: params.ModelStatusInfo{Name: "test-model"},
		Machines: map[string]params.MachineStatus{
			"0": {Hostname: "host0"},
		},
		Applications: map[string]params.ApplicationStatus{
			"ceph-osd": {
				Charm: "ch:ceph-osd",
				Units: map[string]params.UnitStatus{
					"ceph-osd/0": {
						Machine:        "0",
						WorkloadStatus: params.DetailedStatus{Status: "active"},
						AgentStatus:    params.DetailedStatus{Status: "idle"},
						Subordinates: map[string]params.UnitStatus{
							"ntp/0": {
								WorkloadStatus: params.DetailedStatus{Status: "active"},
								AgentStatus:    params.DetailedStatus{Status: "idle"},
							},
						},
					},
				},
			},
			"ntp": {Charm: "ch:ntp"},
		},
	}
	snap, err := buildTopology(full)
	c.Assert(err, jc.ErrorIsNil)

	ntp := snap.Applications["ntp"]
	c.Assert(ntp, gc.NotNil)
	c.Assert(ntp.Units, gc.HasLen, 1)
	c.Check(ntp.Units[0].Name, gc.Equals, "ntp/0")
	c.Check(ntp.Units[0].Machine, gc.Equals, "0")
	c.Check(ntp.Units[0].Hostname, gc.Equals, "host0")
	c.Check(snap.Machines["0"].Units, jc.DeepEquals, []string{"ceph-osd/0", "ntp/0"})
}

func (s *topologySuite) TestBuildTopologyBadCharmURL(c *gc.C) {
	full := &params.FullStatus{
		Model: params.ModelStatusInfo{Name: "test-model"},
		Applications: map[string]params.ApplicationStatus{
			"broken": {Charm: "not a charm url"},
		},
	}
	_, err := buildTopology(full)
	c.Assert(err, gc.ErrorMatches, `parsing charm url "not a charm url": .*`)
}
