// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package snapshot holds the immutable point-in-time view of a model that
// one verification run reasons about. A Snapshot is fetched exactly once
// per invocation by the cluster state gateway and is never cached or
// refreshed, so every check sees the same consistent state.
package snapshot

import (
	"sort"

	"github.com/juju/juju/core/status"
)

// Snapshot is a read-only view of the model at one point in time.
type Snapshot struct {
	// Model is the name of the model the snapshot was taken from.
	Model string

	// Applications is keyed by application name.
	Applications map[string]*Application

	// Machines is keyed by machine id.
	Machines map[string]*Machine

	// Storage, Compute and Network hold workload detail gathered for the
	// charm types affected by the run. A section left unpopulated means
	// the gateway could not (or did not need to) gather it; verifiers
	// treat absent detail as unknown, never as healthy.
	Storage StorageState
	Compute ComputeState
	Network NetworkState
}

// Application is one deployed application and its unit membership.
type Application struct {
	Name string

	// CharmName is the charm's bare name, e.g. "ceph-osd", with any
	// store, architecture, series and revision detail stripped.
	CharmName string

	Units []*Unit
}

// Unit is one running instance of an application.
type Unit struct {
	Name        string
	Application string

	// Machine is the id of the machine hosting the unit.
	Machine string

	// Hostname of the hosting machine, when reported.
	Hostname string

	WorkloadStatus status.Status
	AgentStatus    status.Status
}

// Machine is one provisioned machine and the units it hosts, possibly
// belonging to several applications.
type Machine struct {
	ID       string
	Hostname string

	// Units holds the names of every unit placed on the machine.
	Units []string
}

// StorageState carries ceph detail, keyed by application name.
type StorageState struct {
	// Health maps a ceph application to the cluster health summary
	// reported by its monitor ("HEALTH_OK", "HEALTH_WARN", "HEALTH_ERR").
	Health map[string]string

	// Replication maps a ceph-osd application to the replication
	// requirement derived from its pools.
	Replication map[string]Replication

	// OSDTrees maps a ceph-osd application to its CRUSH tree nodes.
	OSDTrees map[string][]OSDTreeNode

	// Monitors maps a ceph-mon application to its quorum membership.
	Monitors map[string]MonQuorum
}

// Replication is the redundancy requirement of a ceph-osd application.
type Replication struct {
	// MinSurvivingReplicas is the number of healthy units that must
	// remain after the action for every pool to keep serving I/O.
	MinSurvivingReplicas int
}

// MonQuorum describes a ceph-mon cluster's membership.
type MonQuorum struct {
	// KnownMons are the hostnames of all monitors in the monmap.
	KnownMons []string

	// OnlineMons are the hostnames of monitors currently in quorum.
	OnlineMons []string
}

// OSDTreeNode is one bucket or device in a ceph CRUSH tree, as reported
// by the monitor's disk usage probe. Host buckets are named after machine
// hostnames.
type OSDTreeNode struct {
	ID       int
	Name     string
	Type     string
	TypeID   int
	KB       uint64
	KBUsed   uint64
	KBAvail  uint64
	Children []int
}

// ComputeState carries hypervisor detail, keyed by unit name.
type ComputeState struct {
	// Hypervisors maps a nova-compute unit to its guest occupancy.
	Hypervisors map[string]Hypervisor
}

// Hypervisor is the guest occupancy of one compute unit.
type Hypervisor struct {
	RunningGuests int
}

// NetworkState carries routed resource detail for gateway charms.
type NetworkState struct {
	Resources []NetworkResource
}

// Resource kinds hosted by network gateway units.
const (
	ResourceRouter       = "router"
	ResourceDHCPNetwork  = "dhcp-network"
	ResourceLoadBalancer = "load-balancer"
)

// NetworkResource is one routed resource instance scheduled on a host.
// The same resource ID may appear on several hosts when it is redundantly
// scheduled.
type NetworkResource struct {
	Kind   string
	ID     string
	Host   string
	Active bool
	HA     bool
}

// Unit returns the named unit, or nil.
func (s *Snapshot) Unit(name string) *Unit {
	for _, app := range s.Applications {
		for _, u := range app.Units {
			if u.Name == name {
				return u
			}
		}
	}
	return nil
}

// Machine returns the named machine, or nil.
func (s *Snapshot) Machine(id string) *Machine {
	return s.Machines[id]
}

// ApplicationNames returns the names of all applications in the snapshot,
// sorted for deterministic iteration.
func (s *Snapshot) ApplicationNames() []string {
	names := make([]string, 0, len(s.Applications))
	for name := range s.Applications {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnitNames returns the names of the given units.
func UnitNames(units []*Unit) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name
	}
	return names
}

// StatusKnown reports whether st carries a usable signal. Units that have
// not reported, or report "unknown", carry no signal and must not be
// counted as healthy.
func StatusKnown(st status.Status) bool {
	return st != "" && st != status.Unknown
}

// Healthy reports whether a unit's workload is in a state that can be
// relied on to keep serving after its peers are disrupted.
func (u *Unit) Healthy() bool {
	return u.WorkloadStatus == status.Active
}
