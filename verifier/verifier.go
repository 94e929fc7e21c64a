// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package verifier implements the per-charm safety rules consulted before
// a disruptive action. Verifiers are pure: they read the invocation's
// snapshot and produce a result, and never issue cluster-mutating calls.
package verifier

import (
	"sort"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/canonical/juju-verify/core/check"
	"github.com/canonical/juju-verify/core/snapshot"
)

var logger = loggo.GetLogger("juju-verify.verifier")

// Action is the disruptive action being vetted.
type Action string

const (
	Reboot   Action = "reboot"
	Shutdown Action = "shutdown"
)

// Request carries everything a verifier may read: the targeted units of
// one application, the application's full membership, and the shared
// snapshot the whole invocation reasons about.
type Request struct {
	Action      Action
	Application *snapshot.Application

	// Units are the targeted units; all belong to Application.
	Units []*snapshot.Unit

	Snapshot *snapshot.Snapshot

	// Force bypasses active-workload rules; the bypass is recorded in
	// the result's warnings.
	Force bool
}

// TargetNames returns the names of the targeted units.
func (r Request) TargetNames() []string {
	return snapshot.UnitNames(r.Units)
}

// targetSet returns the targeted unit names as a set-like map.
func (r Request) targetSet() map[string]bool {
	targets := make(map[string]bool, len(r.Units))
	for _, u := range r.Units {
		targets[u.Name] = true
	}
	return targets
}

// targetHostnames maps the targeted units to machine hostnames. Units
// whose hostname is not reported are returned separately so checks can
// degrade to an unknown result instead of guessing.
func (r Request) targetHostnames() (hosts []string, missing []string) {
	for _, u := range r.Units {
		if u.Hostname == "" {
			missing = append(missing, u.Name)
			continue
		}
		hosts = append(hosts, u.Hostname)
	}
	return hosts, missing
}

// Verifier is one charm-specific safety rule.
type Verifier interface {
	// Name identifies the check in results and reports.
	Name() string

	// Verify evaluates the rule against the request's snapshot.
	Verify(Request) check.Result
}

// ForCharm returns the ordered checks applicable to a charm. The charm
// set is small and curated, so dispatch is a compiled exhaustive switch
// rather than an open registry. Unsupported charms return NotSupported;
// the engine downgrades that to a single UNKNOWN result so a machine
// target spanning an unsupported application still yields guidance for
// the rest.
func ForCharm(charmName string) ([]Verifier, error) {
	switch charmName {
	case "ceph-osd":
		return []Verifier{
			cephClusterHealth{},
			cephSurvivingReplicas{},
			cephAvailabilityZone{},
		}, nil
	case "ceph-mon":
		return []Verifier{
			cephMonQuorum{},
			cephClusterHealth{},
		}, nil
	case "nova-compute":
		return []Verifier{novaActiveGuests{}}, nil
	case "neutron-gateway":
		return []Verifier{
			gatewayRedundancy{kind: snapshot.ResourceRouter},
			gatewayRedundancy{kind: snapshot.ResourceDHCPNetwork},
			gatewayRedundancy{kind: snapshot.ResourceLoadBalancer},
			routerHAAdvisory{},
		}, nil
	}
	return nil, errors.NotSupportedf("charm %q", charmName)
}

// SupportedCharms lists the charms with registered verifiers, sorted.
func SupportedCharms() []string {
	charms := []string{"ceph-osd", "ceph-mon", "nova-compute", "neutron-gateway"}
	sort.Strings(charms)
	return charms
}
