// Package scenario composes internal/action with the Recorder, the retry
// engine, and the Reverting stack into the wrapping pattern every public
// verb follows: ActionStart, the action body under retry, revert
// registration on success (mutate only), ActionEnd.
//
// A *Scenario* owns one Recorder and one Reverting stack for its whole
// life; NewNamespace/UseCluster return *views* that share both by
// reference and only layer a new ClusterContext/ClusterClient on top, so
// every event a view records still lands in the same linear stream the
// original scenario reports on.
package scenario

import (
	"context"
	"fmt"

	"github.com/hashmap-kz/kscenario/internal/action"
	"github.com/hashmap-kz/kscenario/internal/clustercontext"
	"github.com/hashmap-kz/kscenario/internal/clusterclient"
	"github.com/hashmap-kz/kscenario/internal/manifest"
	"github.com/hashmap-kz/kscenario/internal/recorder"
	"github.com/hashmap-kz/kscenario/internal/retry"
	"github.com/hashmap-kz/kscenario/internal/revert"
)

// Deps is the default dependency set a Scenario and every view derived from
// it share: one Recorder, one Reverting stack, and whichever ClusterClient
// the current view is bound to.
type Deps struct {
	Recorder  *recorder.Recorder
	Client    clusterclient.ClusterClient
	Reverting *revert.Stack
}

// ClusterRef names a cluster for UseCluster: an empty field means "don't
// override this part of the connection".
type ClusterRef struct {
	Context    string
	Kubeconfig string
}

// Scenario runs one named test scenario against a cluster. The zero value
// is not usable; construct with New.
type Scenario struct {
	name              string
	deps              Deps
	cc                clustercontext.Context
	preserveOnFailure bool
	failed            *bool
}

// New starts a scenario named name against client, recording ScenarioStart
// immediately. preserveOnFailure controls whether a failed scenario's
// cleanup is skipped (leaving cluster state behind for inspection) or run
// as usual.
func New(name string, client clusterclient.ClusterClient, cc clustercontext.Context, preserveOnFailure bool) *Scenario {
	rec := recorder.New()
	rec.ScenarioStart(name)
	return &Scenario{
		name:              name,
		deps:              Deps{Recorder: rec, Client: client, Reverting: revert.New(rec)},
		cc:                cc,
		preserveOnFailure: preserveOnFailure,
		failed:            new(bool),
	}
}

// Name returns the scenario's name.
func (s *Scenario) Name() string { return s.name }

// Events returns the Recorder's event log so far, for consumption by
// internal/report.
func (s *Scenario) Events() []recorder.Event { return s.deps.Recorder.Events() }

// EventsYAML renders Events as YAML.
func (s *Scenario) EventsYAML() ([]byte, error) { return s.deps.Recorder.YAML() }

// Failed reports whether any public operation run against this scenario
// (or any view derived from it) has failed so far.
func (s *Scenario) Failed() bool { return *s.failed }

func (s *Scenario) markFailed() { *s.failed = true }

func (s *Scenario) view(cc clustercontext.Context, client clusterclient.ClusterClient) *Scenario {
	return &Scenario{
		name:              s.name,
		deps:              Deps{Recorder: s.deps.Recorder, Client: client, Reverting: s.deps.Reverting},
		cc:                cc,
		preserveOnFailure: s.preserveOnFailure,
		failed:            s.failed,
	}
}

// Given/When/Then/And/But record a BDD annotation. They have no execution
// effect; they exist so the report renders a readable narrative around the
// actions that follow.
func (s *Scenario) Given(description string) *Scenario { return s.bdd(recorder.KindBDDGiven, description) }
func (s *Scenario) When(description string) *Scenario  { return s.bdd(recorder.KindBDDWhen, description) }
func (s *Scenario) Then(description string) *Scenario  { return s.bdd(recorder.KindBDDThen, description) }
func (s *Scenario) And(description string) *Scenario   { return s.bdd(recorder.KindBDDAnd, description) }
func (s *Scenario) But(description string) *Scenario   { return s.bdd(recorder.KindBDDBut, description) }

func (s *Scenario) bdd(kind recorder.Kind, description string) *Scenario {
	s.deps.Recorder.BDD(kind, description)
	return s
}

// NewNamespace creates a namespace (retrying on name collision when the
// name is auto-generated, per input) and returns a namespaced view: every
// operation on the returned Scenario is bound to that namespace.
func (s *Scenario) NewNamespace(ctx context.Context, input action.NamespaceInput, opts ...retry.Options) (*Scenario, error) {
	name, _, err := s.CreateNamespace(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return s.view(s.cc.WithNamespace(name), s.deps.Client), nil
}

// UseCluster returns a cluster view bound to ref's context/kubeconfig. A
// cluster view may itself call NewNamespace, producing a view bound to
// both.
func (s *Scenario) UseCluster(ctx context.Context, ref ClusterRef) (*Scenario, error) {
	override := clustercontext.Context{KubeContext: ref.Context, Kubeconfig: ref.Kubeconfig}
	client, err := s.deps.Client.Extend(ctx, override)
	if err != nil {
		return nil, fmt.Errorf("switching cluster: %w", err)
	}
	return s.view(s.cc.Override(override), client), nil
}

// Finish drains the reverting stack, unless the scenario failed and
// preserveOnFailure is set, in which case cleanup is skipped and the
// cluster state it would have removed is left behind for inspection.
// ScenarioEnd is recorded last either way.
func (s *Scenario) Finish(ctx context.Context) error {
	var err error
	if s.Failed() && s.preserveOnFailure {
		s.deps.Reverting.Skip()
	} else {
		err = s.deps.Reverting.Revert(ctx)
	}
	s.deps.Recorder.ScenarioEnd()
	return err
}

// retryOptions resolves the caller-supplied options (at most one; absent
// means "use the engine defaults").
func retryOptions(opts []retry.Options) retry.Options {
	if len(opts) == 0 {
		return retry.DefaultOptions()
	}
	o := opts[0]
	if o.Timeout == 0 && o.Interval == 0 {
		return retry.DefaultOptions()
	}
	if o.Interval == 0 {
		o.Interval = retry.DefaultInterval
	}
	return o
}

// mutateResult is the value retry.Until threads through a mutate body:
// output plus the optional revert to register on success.
type mutateResult struct {
	output string
	revert *action.Revert
}

// recordCommands emits a CommandRun/CommandResult pair for each synthesized
// command. Called from inside the body passed to retry.Until, never outside
// it, so a retried action's later attempts each get their own pair instead
// of collapsing onto a single recording for the whole retry loop.
func (s *Scenario) recordCommands(cmds []*action.Command) {
	for _, cmd := range cmds {
		if cmd == nil {
			continue
		}
		s.deps.Recorder.CommandRun(cmd.Cmd, cmd.Args, cmd.Stdin, cmd.StdinLanguage)
		s.deps.Recorder.CommandResult(cmd.ExitCode, cmd.Stdout, cmd.Stderr, cmd.StdoutLanguage, cmd.StderrLanguage)
	}
}

func (s *Scenario) recordCommand(cmd *action.Command) {
	s.recordCommands([]*action.Command{cmd})
}

// mutate implements the three-or-four-step pattern every mutating verb
// follows (§4.6): ActionStart, then — unless validate fails first, which
// short-circuits straight to ActionEnd with zero retry events — the body
// under retry, then revert registration on success, then ActionEnd.
func (s *Scenario) mutate(
	ctx context.Context,
	describe string,
	opts retry.Options,
	validate func() error,
	body func(ctx context.Context) (string, []*action.Command, *action.Revert, error),
) (string, error) {
	s.deps.Recorder.ActionStart(describe)

	if validate != nil {
		if err := validate(); err != nil {
			s.markFailed()
			s.deps.Recorder.ActionEnd(false, err)
			return "", err
		}
	}

	opts.Recorder = s.deps.Recorder
	res, err := retry.Until(ctx, opts, func(ctx context.Context) (mutateResult, error) {
		out, cmds, rev, err := body(ctx)
		s.recordCommands(cmds)
		return mutateResult{output: out, revert: rev}, err
	})
	if err != nil {
		s.markFailed()
		s.deps.Recorder.ActionEnd(false, err)
		return "", err
	}

	if res.revert != nil {
		s.deps.Reverting.Add(s.wrapRevert(res.revert))
	}
	s.deps.Recorder.ActionEnd(true, nil)
	return res.output, nil
}

// run implements the one-way-mutate/query pattern: identical to mutate
// minus revert registration.
func (s *Scenario) run(
	ctx context.Context,
	describe string,
	opts retry.Options,
	validate func() error,
	body func(ctx context.Context) (string, []*action.Command, error),
) (string, error) {
	s.deps.Recorder.ActionStart(describe)

	if validate != nil {
		if err := validate(); err != nil {
			s.markFailed()
			s.deps.Recorder.ActionEnd(false, err)
			return "", err
		}
	}

	opts.Recorder = s.deps.Recorder
	out, err := retry.Until(ctx, opts, func(ctx context.Context) (string, error) {
		out, cmds, err := body(ctx)
		s.recordCommands(cmds)
		return out, err
	})
	if err != nil {
		s.markFailed()
		s.deps.Recorder.ActionEnd(false, err)
		return "", err
	}
	s.deps.Recorder.ActionEnd(true, nil)
	return out, nil
}

// wrapRevert brackets rev.Run with its own ActionStart/ActionEnd so
// cleanup phases appear in the event log just like forward phases, and
// records whatever command the revert itself issued.
func (s *Scenario) wrapRevert(rev *action.Revert) revert.Callback {
	return func(ctx context.Context) error {
		s.deps.Recorder.ActionStart(rev.Describe)
		cmd, err := rev.Run(ctx)
		s.recordCommand(cmd)
		s.deps.Recorder.ActionEnd(err == nil, err)
		return err
	}
}

// validateManifest pre-parses raw once, ahead of the retry engine, so a
// genuinely invalid manifest is surfaced immediately with zero
// RetryStart/RetryAttempt/RetryEnd events instead of retrying a
// deterministic failure until the timeout budget runs out.
func validateManifest(raw any) func() error {
	return func() error {
		_, err := manifest.ParseAny(raw)
		return err
	}
}

// Apply parses raw and performs a server-side apply, registering a delete
// revert on success.
func (s *Scenario) Apply(ctx context.Context, raw any, opts ...retry.Options) (string, error) {
	return s.mutate(ctx, action.DescribeManifestOp("Apply", raw), retryOptions(opts), validateManifest(raw),
		func(ctx context.Context) (string, []*action.Command, *action.Revert, error) {
			return action.Apply(ctx, s.deps.Client, s.cc, raw)
		})
}

// Create parses raw and performs a create (fails if the object already
// exists), registering a delete revert on success.
func (s *Scenario) Create(ctx context.Context, raw any, opts ...retry.Options) (string, error) {
	return s.mutate(ctx, action.DescribeManifestOp("Create", raw), retryOptions(opts), validateManifest(raw),
		func(ctx context.Context) (string, []*action.Command, *action.Revert, error) {
			return action.Create(ctx, s.deps.Client, s.cc, raw)
		})
}

// ApplyStatus performs a server-side apply against the status subresource.
// One-way mutate: no revert is registered.
func (s *Scenario) ApplyStatus(ctx context.Context, raw any, opts ...retry.Options) (string, error) {
	return s.run(ctx, action.DescribeManifestOp("ApplyStatus", raw), retryOptions(opts), validateManifest(raw),
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.ApplyStatus(ctx, s.deps.Client, s.cc, raw)
		})
}

// Delete removes a resource by reference. One-way mutate.
func (s *Scenario) Delete(ctx context.Context, ref action.Reference, ignoreNotFound bool, opts ...retry.Options) (string, error) {
	return s.run(ctx, action.DescribeReferenceOp("Delete", ref), retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.Delete(ctx, s.deps.Client, s.cc, ref, ignoreNotFound)
		})
}

// Label adds, updates, or removes labels on a resource. One-way mutate.
func (s *Scenario) Label(ctx context.Context, in action.LabelInput, opts ...retry.Options) (string, error) {
	return s.run(ctx, action.DescribeReferenceOp("Label", in.Reference), retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.Label(ctx, s.deps.Client, s.cc, in)
		})
}

// Get fetches a resource by reference. Query.
func (s *Scenario) Get(ctx context.Context, ref action.Reference, opts ...retry.Options) (string, error) {
	return s.run(ctx, action.DescribeReferenceOp("Get", ref), retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.Get(ctx, s.deps.Client, s.cc, ref)
		})
}

// Assert fetches a resource and invokes test against its YAML body. Query:
// a failing test is retried like any other query failure.
func (s *Scenario) Assert(ctx context.Context, ref action.Reference, test func(resource string) error, opts ...retry.Options) (string, error) {
	return s.run(ctx, action.DescribeReferenceOp("Assert", ref), retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.Assert(ctx, s.deps.Client, s.cc, ref, test)
		})
}

// AssertAbsence succeeds iff the resource is not found. Query.
func (s *Scenario) AssertAbsence(ctx context.Context, ref action.Reference, opts ...retry.Options) (string, error) {
	return s.run(ctx, action.DescribeReferenceOp("AssertAbsence", ref), retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.AssertAbsence(ctx, s.deps.Client, s.cc, ref)
		})
}

// AssertList lists resources of typeName and invokes test against the
// YAML-encoded list. Query.
func (s *Scenario) AssertList(ctx context.Context, typeName string, test func(list string) error, opts ...retry.Options) (string, error) {
	return s.run(ctx, fmt.Sprintf("AssertList %s", typeName), retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.AssertList(ctx, s.deps.Client, s.cc, typeName, test)
		})
}

// AssertOne lists resources of typeName, optionally filters with where,
// requires exactly one survivor, and invokes test against it. Query.
func (s *Scenario) AssertOne(ctx context.Context, typeName string, where func(item map[string]any) bool, test func(item string) error, opts ...retry.Options) (string, error) {
	return s.run(ctx, fmt.Sprintf("AssertOne %s", typeName), retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.AssertOne(ctx, s.deps.Client, s.cc, typeName, where, test)
		})
}

// AssertApplyError attempts an apply; an unexpected success is reverted
// immediately and reported as this action's failure (which retries); an
// expected failure invokes test with the error. Mutate in shape, but
// registers no revert on the expected-error path.
func (s *Scenario) AssertApplyError(ctx context.Context, raw any, test func(err error) error, opts ...retry.Options) (string, error) {
	return s.mutate(ctx, action.DescribeManifestOp("AssertApplyError", raw), retryOptions(opts), validateManifest(raw),
		func(ctx context.Context) (string, []*action.Command, *action.Revert, error) {
			return action.AssertApplyError(ctx, s.deps.Client, s.cc, raw, test)
		})
}

// AssertCreateError is AssertApplyError's create-based counterpart.
func (s *Scenario) AssertCreateError(ctx context.Context, raw any, test func(err error) error, opts ...retry.Options) (string, error) {
	return s.mutate(ctx, action.DescribeManifestOp("AssertCreateError", raw), retryOptions(opts), validateManifest(raw),
		func(ctx context.Context) (string, []*action.Command, *action.Revert, error) {
			return action.AssertCreateError(ctx, s.deps.Client, s.cc, raw, test)
		})
}

// ApplyNamespace applies (upserts) a Namespace manifest for the resolved
// name. Apply is idempotent, so unlike CreateNamespace there is no
// collision to retry.
func (s *Scenario) ApplyNamespace(ctx context.Context, input action.NamespaceInput, opts ...retry.Options) (name, output string, err error) {
	name = action.ResolveNamespaceName(input)
	output, err = s.mutate(ctx, "ApplyNamespace "+name, retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, *action.Revert, error) {
			return action.Apply(ctx, s.deps.Client, s.cc, action.NamespaceManifest(name))
		})
	return name, output, err
}

// CreateNamespace creates a Namespace, re-resolving the name on every retry
// attempt so an auto-generated name that collides gets a fresh draw next
// attempt (a pinned exact name collides deterministically and simply runs
// out the retry budget, as it should).
func (s *Scenario) CreateNamespace(ctx context.Context, input action.NamespaceInput, opts ...retry.Options) (name, output string, err error) {
	var resolved string
	output, err = s.mutate(ctx, "CreateNamespace", retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, *action.Revert, error) {
			resolved = action.ResolveNamespaceName(input)
			return action.Create(ctx, s.deps.Client, s.cc, action.NamespaceManifest(resolved))
		})
	if err != nil {
		return "", "", err
	}
	return resolved, output, nil
}

// Exec invokes in.Do under the shell adapter and registers in.Revert (or a
// no-op when absent).
func (s *Scenario) Exec(ctx context.Context, in action.ExecInput, opts ...retry.Options) (string, error) {
	describe := in.Describe
	if describe == "" {
		describe = "Exec"
	}
	return s.mutate(ctx, describe, retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, *action.Revert, error) {
			return action.Exec(ctx, in)
		})
}

// AssertReady polls, under retry, until the resource reports a
// Current/Ready status. Query.
func (s *Scenario) AssertReady(ctx context.Context, ref action.Reference, opts ...retry.Options) (string, error) {
	return s.run(ctx, action.DescribeReferenceOp("AssertReady", ref), retryOptions(opts), nil,
		func(ctx context.Context) (string, []*action.Command, error) {
			return action.AssertReady(ctx, s.deps.Client, s.cc, ref)
		})
}
