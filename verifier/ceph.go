// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package verifier

import (
	"strings"

	"github.com/juju/collections/set"

	"github.com/canonical/juju-verify/core/check"
	"github.com/canonical/juju-verify/core/snapshot"
)

// cephClusterHealth vets the health summary reported by the monitors of
// the application's ceph cluster. It applies to both ceph-osd and
// ceph-mon targets.
type cephClusterHealth struct{}

// Name is part of Verifier.
func (cephClusterHealth) Name() string { return "ceph-cluster-health" }

// Verify is part of Verifier.
func (c cephClusterHealth) Verify(req Request) check.Result {
	health, ok := req.Snapshot.Storage.Health[req.Application.Name]
	if !ok {
		return check.Unknownf(c.Name(), req.TargetNames(),
			"ceph cluster health for application %q could not be obtained", req.Application.Name)
	}
	switch {
	case strings.Contains(health, "HEALTH_OK"):
		return check.Passed(c.Name(), "ceph cluster is healthy")
	case strings.Contains(health, "HEALTH_WARN"):
		return check.Failedf(c.Name(), req.TargetNames(), "ceph cluster is in a warning state: %s", health)
	case strings.Contains(health, "HEALTH_ERR"):
		return check.Failedf(c.Name(), req.TargetNames(), "ceph cluster is unhealthy: %s", health)
	}
	return check.Failedf(c.Name(), req.TargetNames(), "ceph cluster is in an unexpected state: %s", health)
}

// cephSurvivingReplicas enforces the replication requirement of a
// ceph-osd application: after removing the targeted units, the number of
// healthy remaining units must not drop below the minimum derived from
// the cluster's pools.
type cephSurvivingReplicas struct{}

// Name is part of Verifier.
func (cephSurvivingReplicas) Name() string { return "surviving-replicas" }

// Verify is part of Verifier.
func (c cephSurvivingReplicas) Verify(req Request) check.Result {
	replication, ok := req.Snapshot.Storage.Replication[req.Application.Name]
	if !ok {
		return check.Unknownf(c.Name(), req.TargetNames(),
			"replication requirement for application %q could not be obtained", req.Application.Name)
	}

	targets := req.targetSet()
	var unreported []string
	surviving := 0
	for _, u := range req.Application.Units {
		if !snapshot.StatusKnown(u.WorkloadStatus) {
			unreported = append(unreported, u.Name)
			continue
		}
		if !targets[u.Name] && u.Healthy() {
			surviving++
		}
	}
	if len(unreported) > 0 {
		return check.Unknownf(c.Name(), unreported,
			"%d unit(s) of application %q report no usable status", len(unreported), req.Application.Name)
	}

	minimum := replication.MinSurvivingReplicas
	if surviving < minimum {
		return check.Failedf(c.Name(), req.TargetNames(),
			"removing %d unit(s) leaves %d healthy unit(s), required minimum is %d",
			len(req.Units), surviving, minimum)
	}
	logger.Debugf("application %q keeps %d healthy unit(s), required minimum is %d",
		req.Application.Name, surviving, minimum)
	return check.Passed(c.Name(), "minimum replica requirement met")
}

// cephAvailabilityZone checks that the CRUSH ancestors of the targeted
// hosts retain enough free space to re-replicate the data held on those
// hosts once they go away.
type cephAvailabilityZone struct{}

// Name is part of Verifier.
func (cephAvailabilityZone) Name() string { return "availability-zone" }

// Verify is part of Verifier.
func (c cephAvailabilityZone) Verify(req Request) check.Result {
	nodes, ok := req.Snapshot.Storage.OSDTrees[req.Application.Name]
	if !ok {
		return check.Unknownf(c.Name(), req.TargetNames(),
			"ceph OSD tree for application %q could not be obtained", req.Application.Name)
	}
	hosts, missing := req.targetHostnames()
	if len(missing) > 0 {
		return check.Unknownf(c.Name(), missing, "hostnames of %d targeted unit(s) are not reported", len(missing))
	}

	tree := newCephTree(nodes)
	removable, err := tree.canRemoveHosts(hosts, "root")
	if err != nil {
		return check.Unknownf(c.Name(), req.TargetNames(), "cannot evaluate OSD tree: %v", err)
	}
	if !removable {
		return check.Failedf(c.Name(), req.TargetNames(),
			"removing host(s) %s would leave the availability zone without enough free space to re-replicate",
			strings.Join(hosts, ", "))
	}
	return check.Passed(c.Name(), "availability zone retains enough free space")
}

// cephMonQuorum checks that taking the targeted monitors down still
// leaves a strict majority of the known monitors online.
type cephMonQuorum struct{}

// Name is part of Verifier.
func (cephMonQuorum) Name() string { return "mon-quorum" }

// Verify is part of Verifier.
func (c cephMonQuorum) Verify(req Request) check.Result {
	quorum, ok := req.Snapshot.Storage.Monitors[req.Application.Name]
	if !ok {
		return check.Unknownf(c.Name(), req.TargetNames(),
			"monitor quorum for application %q could not be obtained", req.Application.Name)
	}
	hosts, missing := req.targetHostnames()
	if len(missing) > 0 {
		return check.Unknownf(c.Name(), missing, "hostnames of %d targeted unit(s) are not reported", len(missing))
	}

	online := set.NewStrings(quorum.OnlineMons...)
	survivors := online.Difference(set.NewStrings(hosts...))
	if survivors.Size() <= len(quorum.KnownMons)/2 {
		return check.Failedf(c.Name(), req.TargetNames(),
			"rebooting or shutting down the targeted unit(s) would lose monitor quorum: %d of %d monitor(s) would remain online",
			survivors.Size(), len(quorum.KnownMons))
	}
	return check.Passed(c.Name(), "monitor quorum is preserved")
}
