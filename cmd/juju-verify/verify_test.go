// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"

	"github.com/juju/cmd/v3"
	"github.com/juju/cmd/v3/cmdtesting"
	"github.com/juju/errors"
	"github.com/juju/juju/core/status"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/juju-verify/core/snapshot"
	"github.com/canonical/juju-verify/gateway"
	"github.com/canonical/juju-verify/verifier"
)

type verifyCommandSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&verifyCommandSuite{})

type stubGateway struct {
	snap *snapshot.Snapshot
	err  error
}

func (g *stubGateway) Snapshot(context.Context, gateway.Scope) (*snapshot.Snapshot, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.snap, nil
}

// computeCloud is a one-hypervisor model; the guest count drives the
// nova-compute verdict.
func computeCloud(guests int) *snapshot.Snapshot {
	nova := &snapshot.Application{Name: "nova-compute", CharmName: "nova-compute"}
	nova.Units = append(nova.Units, &snapshot.Unit{
		Name:           "nova-compute/0",
		Application:    "nova-compute",
		Machine:        "0",
		Hostname:       "host0",
		WorkloadStatus: status.Active,
		AgentStatus:    status.Idle,
	})
	return &snapshot.Snapshot{
		Model:        "test-model",
		Applications: map[string]*snapshot.Application{"nova-compute": nova},
		Machines: map[string]*snapshot.Machine{
			"0": {ID: "0", Hostname: "host0", Units: []string{"nova-compute/0"}},
		},
		Compute: snapshot.ComputeState{
			Hypervisors: map[string]snapshot.Hypervisor{"nova-compute/0": {RunningGuests: guests}},
		},
	}
}

func (s *verifyCommandSuite) command(gw gateway.Gateway, gwErr error) cmd.Command {
	c := &verifyCommand{action: verifier.Reboot}
	c.newGateway = func(*cmd.Context) (gateway.Gateway, error) {
		if gwErr != nil {
			return nil, gwErr
		}
		return gw, nil
	}
	return c
}

func (s *verifyCommandSuite) TestInitRejectsMissingTargets(c *gc.C) {
	err := cmdtesting.InitCommand(newVerifyCommand(verifier.Reboot), nil)
	c.Assert(err, gc.ErrorMatches, "no targets specified; use --units or --machines")
}

func (s *verifyCommandSuite) TestInitRejectsMixedTargets(c *gc.C) {
	err := cmdtesting.InitCommand(newVerifyCommand(verifier.Reboot),
		[]string{"--units", "ceph-osd/0", "--machines", "0"})
	c.Assert(err, gc.ErrorMatches, "--units and --machines are mutually exclusive")
}

func (s *verifyCommandSuite) TestInitRejectsInvalidNames(c *gc.C) {
	err := cmdtesting.InitCommand(newVerifyCommand(verifier.Reboot),
		[]string{"--units", "ceph-osd/0,ceph_osd,0"})
	c.Assert(err, gc.ErrorMatches, "invalid targets:\n"+
		"  \"ceph_osd\" is not a valid unit name\n"+
		"  \"0\" is not a valid unit name")

	err = cmdtesting.InitCommand(newVerifyCommand(verifier.Shutdown),
		[]string{"--machines", "ceph-osd/0"})
	c.Assert(err, gc.ErrorMatches, "invalid targets:\n  \"ceph-osd/0\" is not a valid machine id")
}

func (s *verifyCommandSuite) TestInitRejectsExtraArgs(c *gc.C) {
	err := cmdtesting.InitCommand(newVerifyCommand(verifier.Reboot),
		[]string{"--units", "ceph-osd/0", "leftover"})
	c.Assert(err, gc.ErrorMatches, `unrecognized args: \["leftover"\]`)
}

func (s *verifyCommandSuite) TestInitAcceptsValidTargets(c *gc.C) {
	err := cmdtesting.InitCommand(newVerifyCommand(verifier.Reboot),
		[]string{"--units", "ceph-osd/0,ceph-osd/1"})
	c.Assert(err, jc.ErrorIsNil)

	err = cmdtesting.InitCommand(newVerifyCommand(verifier.Shutdown),
		[]string{"--machines", "0,1/lxd/2"})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *verifyCommandSuite) TestSafeRunExitsZero(c *gc.C) {
	ctx, err := cmdtesting.RunCommand(c, s.command(&stubGateway{snap: computeCloud(0)}, nil),
		"--units", "nova-compute/0")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), jc.Contains, "overall: PASS")
}

func (s *verifyCommandSuite) TestUnsafeRunExitsFive(c *gc.C) {
	ctx, err := cmdtesting.RunCommand(c, s.command(&stubGateway{snap: computeCloud(3)}, nil),
		"--units", "nova-compute/0")
	c.Assert(err, gc.ErrorMatches, "subprocess encountered error code 5")
	c.Check(cmd.IsRcPassthroughError(err), jc.IsTrue)
	c.Check(cmdtesting.Stdout(ctx), jc.Contains, "overall: FAIL")
	c.Check(cmdtesting.Stdout(ctx), jc.Contains, "active-guests")
}

func (s *verifyCommandSuite) TestUnknownRunExitsSix(c *gc.C) {
	snap := computeCloud(0)
	snap.Compute.Hypervisors = nil
	ctx, err := cmdtesting.RunCommand(c, s.command(&stubGateway{snap: snap}, nil),
		"--units", "nova-compute/0")
	c.Assert(err, gc.ErrorMatches, "subprocess encountered error code 6")
	c.Check(cmdtesting.Stdout(ctx), jc.Contains, "overall: UNKNOWN")
}

func (s *verifyCommandSuite) TestGatewayFailureExitsSeven(c *gc.C) {
	gw := &stubGateway{err: errors.New("connection refused")}
	ctx, err := cmdtesting.RunCommand(c, s.command(gw, nil), "--units", "nova-compute/0")
	c.Assert(err, gc.ErrorMatches, "subprocess encountered error code 7")
	c.Check(cmdtesting.Stderr(ctx), jc.Contains, "no checks were completed")
	c.Check(cmdtesting.Stderr(ctx), jc.Contains, "connection refused")
}

func (s *verifyCommandSuite) TestVerdictCodesClearOfCommandErrorCodes(c *gc.C) {
	// cmd.Main exits 1 for command errors and 2 for usage and flag-parse
	// errors, including everything Init rejects. The verdict statuses
	// must stay above both so a usage error can never read as a verdict.
	for _, code := range []int{exitUnsafe, exitUnknown, exitGatewayError} {
		c.Check(code > 2, jc.IsTrue)
	}
	err := cmdtesting.InitCommand(newVerifyCommand(verifier.Reboot), nil)
	c.Assert(err, gc.NotNil)
	c.Check(cmd.IsRcPassthroughError(err), jc.IsFalse)
}

func (s *verifyCommandSuite) TestForceWarningInReport(c *gc.C) {
	ctx, err := cmdtesting.RunCommand(c, s.command(&stubGateway{snap: computeCloud(2)}, nil),
		"--units", "nova-compute/0", "--force")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), jc.Contains, "WARN active-guests: force override")
}

func (s *verifyCommandSuite) TestJSONFormat(c *gc.C) {
	ctx, err := cmdtesting.RunCommand(c, s.command(&stubGateway{snap: computeCloud(0)}, nil),
		"--units", "nova-compute/0", "--format", "json")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), jc.Contains, `"verdict":"PASS"`)
}

func (s *verifyCommandSuite) TestGatewayConstructionErrorPropagates(c *gc.C) {
	_, err := cmdtesting.RunCommand(c, s.command(nil, errors.New("no controller addresses")),
		"--units", "nova-compute/0")
	c.Assert(err, gc.ErrorMatches, "no controller addresses")
}
