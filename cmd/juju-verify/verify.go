// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/names/v5"

	"github.com/canonical/juju-verify/core/check"
	"github.com/canonical/juju-verify/gateway"
	"github.com/canonical/juju-verify/gateway/jujuapi"
	"github.com/canonical/juju-verify/verifier"
	"github.com/canonical/juju-verify/verify"
)

// Exit statuses let callers tell "cluster unsafe" apart from "could not
// determine" and from failures to gather any state at all. The cmd
// package already exits 1 for command errors and 2 for usage and
// flag-parse errors, so the verdict statuses sit above both.
const (
	exitUnsafe       = 5
	exitUnknown      = 6
	exitGatewayError = 7
)

const verifyDoc = `
Targets are supplied either as units or as machines, never both. A
machine target covers every unit hosted on the machine, so one machine
may be checked against the rules of several applications; each
application gets its own verdict and the worst one decides the exit
status.

Connection details default to the JUJU_CONTROLLER_ADDRESSES,
JUJU_USERNAME, JUJU_PASSWORD, JUJU_MODEL_UUID and JUJU_CA_CERT
environment variables.

Exit status: 0 when every check passed, 5 when any check failed, 6 when
no check failed but at least one could not be determined, 7 when cluster
state could not be obtained at all. Usage and input errors exit with
status 2, any other error with status 1.
`

const verifyExamples = `
    juju-verify reboot --units ceph-osd/0,ceph-osd/1
    juju-verify shutdown --machines 3
    juju-verify reboot --units nova-compute/2 --force
`

// verifyCommand implements both the reboot and shutdown subcommands;
// the checks vetting the two actions are charm-specific.
type verifyCommand struct {
	cmd.CommandBase
	out cmd.Output

	action verifier.Action

	// newGateway is swapped out in tests.
	newGateway func(*cmd.Context) (gateway.Gateway, error)

	units    []string
	machines []string
	force    bool
	timeout  time.Duration

	controllers []string
	caCertFile  cmd.FileVar
	modelUUID   string
	username    string
	password    string
}

func newVerifyCommand(action verifier.Action) cmd.Command {
	c := &verifyCommand{action: action}
	c.newGateway = c.apiGateway
	return c
}

// Info implements cmd.Command.
func (c *verifyCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:     string(c.action),
		Purpose:  fmt.Sprintf("Check that the targeted units or machines are safe to %s.", c.action),
		Doc:      verifyDoc,
		Examples: verifyExamples,
	}
}

// SetFlags implements cmd.Command.
func (c *verifyCommand) SetFlags(f *gnuflag.FlagSet) {
	c.out.AddFlags(f, "plain", map[string]cmd.Formatter{
		"plain": formatVerdictPlain,
		"yaml":  cmd.FormatYaml,
		"json":  cmd.FormatJson,
	})
	f.Var(cmd.NewStringsValue(nil, &c.units), "units", "one or more unit names")
	f.Var(cmd.NewStringsValue(nil, &c.machines), "machines", "one or more machine ids")
	f.BoolVar(&c.force, "force", false, "bypass active-workload rules; the bypass is recorded in the report")
	f.DurationVar(&c.timeout, "timeout", 5*time.Minute, "how long to wait for cluster state before giving up")
	f.Var(cmd.NewStringsValue(nil, &c.controllers), "controllers", "controller api addresses")
	f.Var(&c.caCertFile, "ca-cert", "path to the controller CA certificate")
	f.StringVar(&c.modelUUID, "model-uuid", "", "uuid of the model holding the targets")
	f.StringVar(&c.username, "user", "", "controller user name")
	f.StringVar(&c.password, "password", "", "controller user password")
}

// Init implements cmd.Command.
func (c *verifyCommand) Init(args []string) error {
	switch {
	case len(c.units) == 0 && len(c.machines) == 0:
		return errors.New("no targets specified; use --units or --machines")
	case len(c.units) > 0 && len(c.machines) > 0:
		return errors.New("--units and --machines are mutually exclusive")
	}
	var bad []string
	for _, unit := range c.units {
		if !names.IsValidUnit(unit) {
			bad = append(bad, fmt.Sprintf("%q is not a valid unit name", unit))
		}
	}
	for _, machine := range c.machines {
		if !names.IsValidMachine(machine) {
			bad = append(bad, fmt.Sprintf("%q is not a valid machine id", machine))
		}
	}
	if len(bad) > 0 {
		return errors.New("invalid targets:\n  " + strings.Join(bad, "\n  "))
	}
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *verifyCommand) Run(ctx *cmd.Context) error {
	gw, err := c.newGateway(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	verdict, err := verify.Run(context.Background(), verify.Params{
		Gateway:  gw,
		Action:   c.action,
		Units:    c.units,
		Machines: c.machines,
		Force:    c.force,
		Timeout:  c.timeout,
	})
	if err != nil {
		if gateway.IsGatewayError(err) {
			ctx.Infof("no checks were completed: %v", err)
			return cmd.NewRcPassthroughError(exitGatewayError)
		}
		return errors.Trace(err)
	}
	if err := c.out.Write(ctx, verdict); err != nil {
		return errors.Trace(err)
	}
	switch verdict.Outcome {
	case check.Fail:
		return cmd.NewRcPassthroughError(exitUnsafe)
	case check.Unknown:
		return cmd.NewRcPassthroughError(exitUnknown)
	}
	return nil
}

func (c *verifyCommand) apiGateway(ctx *cmd.Context) (gateway.Gateway, error) {
	controllers := c.controllers
	if len(controllers) == 0 {
		if addrs := os.Getenv("JUJU_CONTROLLER_ADDRESSES"); addrs != "" {
			controllers = strings.Split(addrs, ",")
		}
	}
	caCert := os.Getenv("JUJU_CA_CERT")
	if c.caCertFile.Path != "" {
		content, err := c.caCertFile.Read(ctx)
		if err != nil {
			return nil, errors.Annotate(err, "reading CA certificate")
		}
		caCert = string(content)
	}
	return jujuapi.New(jujuapi.Config{
		ControllerAddresses: controllers,
		CACert:              caCert,
		ModelUUID:           envDefault(c.modelUUID, "JUJU_MODEL_UUID"),
		Username:            envDefault(c.username, "JUJU_USERNAME"),
		Password:            envDefault(c.password, "JUJU_PASSWORD"),
	})
}

func envDefault(value, envKey string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envKey)
}

func formatVerdictPlain(writer io.Writer, value interface{}) error {
	verdict, ok := value.(check.Verdict)
	if !ok {
		return errors.Errorf("expected value of type %T, got %T", verdict, value)
	}
	_, err := io.WriteString(writer, verdict.Describe())
	return err
}
