// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package verify runs one verification invocation end to end: validate
// the requested targets, take a single cluster state snapshot, resolve
// the affected application groups, evaluate every applicable charm check
// and aggregate the results into a verdict.
package verify

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/canonical/juju-verify/core/check"
	"github.com/canonical/juju-verify/core/snapshot"
	"github.com/canonical/juju-verify/gateway"
	"github.com/canonical/juju-verify/resolver"
	"github.com/canonical/juju-verify/verifier"
)

var logger = loggo.GetLogger("juju-verify.verify")

// Params configures one invocation. Exactly one of Units or Machines
// must be populated.
type Params struct {
	Gateway gateway.Gateway

	Action   verifier.Action
	Units    []string
	Machines []string

	// Force bypasses active-workload rules.
	Force bool

	// Timeout bounds the snapshot fetch, the only blocking phase.
	// Zero means no explicit bound beyond the caller's context.
	Timeout time.Duration
}

func (p Params) validate() (resolver.Targets, error) {
	if p.Gateway == nil {
		return resolver.Targets{}, errors.NotValidf("nil gateway")
	}
	switch p.Action {
	case verifier.Reboot, verifier.Shutdown:
	default:
		return resolver.Targets{}, errors.NotValidf("action %q", p.Action)
	}
	switch {
	case len(p.Units) == 0 && len(p.Machines) == 0:
		return resolver.Targets{}, errors.NotValidf("empty target set")
	case len(p.Units) > 0 && len(p.Machines) > 0:
		return resolver.Targets{}, errors.NotValidf("mixing unit and machine targets")
	case len(p.Machines) > 0:
		return resolver.Targets{Kind: resolver.Machines, Names: p.Machines}, nil
	}
	return resolver.Targets{Kind: resolver.Units, Names: p.Units}, nil
}

// Run performs one verification invocation. Input, resolution and
// gateway failures abort the run with no partial verdict; unknown
// outcomes from individual checks degrade the verdict instead.
func Run(ctx context.Context, p Params) (check.Verdict, error) {
	targets, err := p.validate()
	if err != nil {
		return check.Verdict{}, errors.Trace(err)
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	logger.Debugf("fetching cluster state snapshot for %s %v", targets.Kind, targets.Names)
	snap, err := p.Gateway.Snapshot(ctx, gateway.Scope{
		Units:    p.Units,
		Machines: p.Machines,
	})
	if err != nil {
		if !gateway.IsGatewayError(err) {
			err = gateway.NewError(err)
		}
		return check.Verdict{}, errors.Trace(err)
	}

	groups, err := resolver.Resolve(snap, targets)
	if err != nil {
		return check.Verdict{}, errors.Trace(err)
	}

	// Checks are pure computations over the shared immutable snapshot,
	// so every (group, check) pair runs concurrently with no locking;
	// each goroutine writes its own pre-allocated slot.
	groupResults := make([][]check.Result, len(groups))
	var wg sync.WaitGroup
	for i, group := range groups {
		req := verifier.Request{
			Action:      p.Action,
			Application: snap.Applications[group.Application],
			Units:       group.Units,
			Snapshot:    snap,
			Force:       p.Force,
		}
		targetNames := req.TargetNames()

		checks, err := verifier.ForCharm(group.CharmName)
		if err != nil {
			if !errors.Is(err, errors.NotSupported) {
				return check.Verdict{}, errors.Trace(err)
			}
			logger.Infof("no verifier registered for charm %q (application %q)",
				group.CharmName, group.Application)
			groupResults[i] = []check.Result{check.Unknownf("charm-support", targetNames,
				"unsupported charm type %q", group.CharmName)}
			continue
		}

		groupResults[i] = make([]check.Result, len(checks))
		for j, v := range checks {
			j, v := j, v
			results := groupResults[i]
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[j] = v.Verify(req)
			}()
		}
	}
	wg.Wait()

	verdicts := make([]check.GroupVerdict, len(groups))
	for i, group := range groups {
		verdicts[i] = check.NewGroupVerdict(group.Application, group.CharmName,
			snapshot.UnitNames(group.Units), groupResults[i])
	}
	return check.Combine(verdicts), nil
}
