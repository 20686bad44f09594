// Package action implements the pure, cluster-interacting bodies of the
// engine's action taxonomy: Apply, Create, ApplyStatus, Delete, Label, Get,
// Assert, AssertAbsence, AssertList, AssertOne, AssertApplyError,
// AssertCreateError, ApplyNamespace/CreateNamespace, Exec, and AssertReady.
//
// Each function here is the "body" the scenario runtime (internal/scenario)
// wraps with ActionStart/ActionEnd recording, the retry engine, and (for
// mutating actions) revert-stack registration. This package knows nothing
// about the Recorder or the Reverting stack; it only talks to a
// ClusterClient and the shell adapter (internal/shellrunner), which keeps
// it directly testable against a fake client. Every function also returns
// the Command(s) it issued, synthesized as the kubectl invocation its
// cluster call corresponds to, so the scenario runtime can fold them into
// the report's command events without this package needing to know what a
// Recorder is.
package action

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashmap-kz/kscenario/internal/clustercontext"
	"github.com/hashmap-kz/kscenario/internal/clusterclient"
	"github.com/hashmap-kz/kscenario/internal/manifest"
	"github.com/hashmap-kz/kscenario/internal/randname"
	"github.com/hashmap-kz/kscenario/internal/shellrunner"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	sigsyaml "sigs.k8s.io/yaml"
)

// Command is the synthesized kubectl invocation an action's cluster call (or
// an Exec callback's shell invocation) corresponds to: the command line, the
// manifest YAML piped in as stdin when there is one, and the result captured
// as stdout/stderr. It mirrors the Command record the report model (§3)
// expects around every cluster operation.
type Command struct {
	Cmd            string
	Args           []string
	Stdin          string
	StdinLanguage  string
	ExitCode       int
	Stdout         string
	StdoutLanguage string
	Stderr         string
	StderrLanguage string
}

func fillResult(cmd *Command, out string, opErr error, outLanguage string) *Command {
	if opErr != nil {
		cmd.ExitCode = 1
		cmd.Stderr = opErr.Error()
		cmd.StderrLanguage = "text"
		return cmd
	}
	cmd.Stdout = out
	cmd.StdoutLanguage = outLanguage
	return cmd
}

// kubectlManifestCommand synthesizes the kubectl line an apply/create-style
// cluster call corresponds to: the manifest piped in on stdin, the returned
// object (or the error) captured as stdout/stderr.
func kubectlManifestCommand(verb string, obj *unstructured.Unstructured, cc clustercontext.Context, extraArgs []string, out string, opErr error) *Command {
	args := []string{verb}
	if cc.Namespace != "" {
		args = append(args, "-n", cc.Namespace)
	}
	args = append(args, extraArgs...)
	args = append(args, "-f", "-")

	stdin, _ := manifestToYAML(obj.Object)
	return fillResult(&Command{Cmd: "kubectl", Args: args, Stdin: stdin, StdinLanguage: "yaml"}, out, opErr, "yaml")
}

// kubectlRefCommand synthesizes the kubectl line a reference-driven cluster
// call (get, list, delete, label, ...) corresponds to.
func kubectlRefCommand(verb string, ref Reference, cc clustercontext.Context, extraArgs []string, out string, opErr error, outLanguage string) *Command {
	args := []string{verb, ref.TypeName}
	if ref.Name != "" {
		args = append(args, ref.Name)
	}
	if cc.Namespace != "" {
		args = append(args, "-n", cc.Namespace)
	}
	args = append(args, extraArgs...)
	return fillResult(&Command{Cmd: "kubectl", Args: args}, out, opErr, outLanguage)
}

// Reference identifies one cluster object by kind and name, the input shape
// every query/delete/label-style action takes.
type Reference struct {
	TypeName string
	Name     string
}

// UnexpectedSuccessError is raised by AssertApplyError/AssertCreateError
// when the underlying apply/create surprisingly succeeds.
type UnexpectedSuccessError struct {
	Operation string
	TypeName  string
	Name      string
}

func (e *UnexpectedSuccessError) Error() string {
	return fmt.Sprintf("%s of %s %q unexpectedly succeeded", e.Operation, e.TypeName, e.Name)
}

// DescribeManifestOp renders the ActionStart/report label for a
// manifest-driven action ("Apply ConfigMap cm"), best-effort: a manifest
// that fails to parse still gets a usable, generic label.
func DescribeManifestOp(verb string, raw any) string {
	obj, err := manifest.ParseAny(raw)
	if err != nil {
		return verb + " <invalid manifest>"
	}
	return fmt.Sprintf("%s %s %s", verb, obj.GetKind(), obj.GetName())
}

// DescribeReferenceOp renders the ActionStart/report label for a
// reference-driven action ("Get ConfigMap cm").
func DescribeReferenceOp(verb string, ref Reference) string {
	return fmt.Sprintf("%s %s %s", verb, ref.TypeName, ref.Name)
}

// Revert is what a mutating action registers on success: a callback to run
// during cleanup (returning the command it issued, if any, so the revert
// phase gets its own command events), plus the label its own
// ActionStart/ActionEnd bracket should carry so reverts show up in the
// report like any other action.
type Revert struct {
	Describe string
	Run      func(ctx context.Context) (*Command, error)
}

func deleteRevert(client clusterclient.ClusterClient, cc clustercontext.Context, typeName, name string) *Revert {
	return &Revert{
		Describe: fmt.Sprintf("Delete %s %s", typeName, name),
		Run: func(ctx context.Context) (*Command, error) {
			out, err := client.Delete(ctx, typeName, name, clusterclient.DeleteOptions{IgnoreNotFound: true, Context: cc})
			cmd := kubectlRefCommand("delete", Reference{TypeName: typeName, Name: name}, cc, nil, out, err, "text")
			return cmd, err
		},
	}
}

// Apply parses raw and performs a server-side apply. The returned revert
// deletes the object by kind + name, tolerating not-found.
func Apply(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, raw any) (output string, cmds []*Command, rev *Revert, err error) {
	obj, err := manifest.ParseAny(raw)
	if err != nil {
		return "", nil, nil, err
	}
	out, opErr := client.Apply(ctx, obj, cc)
	cmd := kubectlManifestCommand("apply", obj, cc, nil, out, opErr)
	if opErr != nil {
		return "", []*Command{cmd}, nil, opErr
	}
	typeName := clusterclient.TypeName(obj.GroupVersionKind())
	return out, []*Command{cmd}, deleteRevert(client, cc, typeName, obj.GetName()), nil
}

// Create parses raw and performs a create, which fails if the object
// already exists. Revert deletes it, tolerating not-found.
func Create(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, raw any) (output string, cmds []*Command, rev *Revert, err error) {
	obj, err := manifest.ParseAny(raw)
	if err != nil {
		return "", nil, nil, err
	}
	out, opErr := client.Create(ctx, obj, cc)
	cmd := kubectlManifestCommand("create", obj, cc, nil, out, opErr)
	if opErr != nil {
		return "", []*Command{cmd}, nil, opErr
	}
	typeName := clusterclient.TypeName(obj.GroupVersionKind())
	return out, []*Command{cmd}, deleteRevert(client, cc, typeName, obj.GetName()), nil
}

// ApplyStatus performs a server-side apply against the status subresource.
// One-way mutate: no revert is registered.
func ApplyStatus(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, raw any) (string, []*Command, error) {
	obj, err := manifest.ParseAny(raw)
	if err != nil {
		return "", nil, err
	}
	out, opErr := client.ApplyStatus(ctx, obj, cc)
	cmd := kubectlManifestCommand("apply", obj, cc, []string{"--subresource=status"}, out, opErr)
	return out, []*Command{cmd}, opErr
}

// Delete removes a resource by reference. One-way mutate.
func Delete(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, ref Reference, ignoreNotFound bool) (string, []*Command, error) {
	out, err := client.Delete(ctx, ref.TypeName, ref.Name, clusterclient.DeleteOptions{IgnoreNotFound: ignoreNotFound, Context: cc})
	cmd := kubectlRefCommand("delete", ref, cc, nil, out, err, "text")
	return out, []*Command{cmd}, err
}

// LabelInput is Label's mutating input: each value is set, or removed when
// nil.
type LabelInput struct {
	Reference Reference
	Labels    map[string]*string
	Overwrite bool
}

// Label adds, updates, or removes labels on a resource. One-way mutate.
func Label(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, in LabelInput) (string, []*Command, error) {
	out, err := client.Label(ctx, in.Reference.TypeName, in.Reference.Name, in.Labels, clusterclient.LabelOptions{Overwrite: in.Overwrite, Context: cc})
	cmd := kubectlRefCommand("label", in.Reference, cc, labelArgs(in), out, err, "yaml")
	return out, []*Command{cmd}, err
}

func labelArgs(in LabelInput) []string {
	keys := make([]string, 0, len(in.Labels))
	for k := range in.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		if v := in.Labels[k]; v != nil {
			args = append(args, k+"="+*v)
		} else {
			args = append(args, k+"-")
		}
	}
	if in.Overwrite {
		args = append(args, "--overwrite")
	}
	return args
}

// Get fetches a resource by reference and verifies the fetched
// apiVersion/kind/metadata.name match what was asked for.
func Get(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, ref Reference) (string, []*Command, error) {
	out, err := client.Get(ctx, ref.TypeName, ref.Name, cc)
	cmd := kubectlRefCommand("get", ref, cc, []string{"-o", "yaml"}, out, err, "yaml")
	if err != nil {
		return "", []*Command{cmd}, err
	}
	obj, err := manifest.ParseAny(out)
	if err != nil {
		return "", []*Command{cmd}, fmt.Errorf("parsing fetched object: %w", err)
	}
	gotTypeName := clusterclient.TypeName(obj.GroupVersionKind())
	if gotTypeName != ref.TypeName || obj.GetName() != ref.Name {
		return "", []*Command{cmd}, fmt.Errorf("fetched object %s %q does not match reference %s %q", gotTypeName, obj.GetName(), ref.TypeName, ref.Name)
	}
	return out, []*Command{cmd}, nil
}

// Assert fetches a resource and invokes test against its YAML-encoded body.
// Callback failure is retried by the scenario runtime's wrapper.
func Assert(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, ref Reference, test func(resource string) error) (string, []*Command, error) {
	out, err := client.Get(ctx, ref.TypeName, ref.Name, cc)
	cmd := kubectlRefCommand("get", ref, cc, []string{"-o", "yaml"}, out, err, "yaml")
	if err != nil {
		return "", []*Command{cmd}, err
	}
	if err := test(out); err != nil {
		return "", []*Command{cmd}, err
	}
	return out, []*Command{cmd}, nil
}

// AssertAbsence succeeds iff the fetch fails with a not-found signal; any
// other error is re-raised, and a successful fetch is this action's failure.
func AssertAbsence(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, ref Reference) (string, []*Command, error) {
	out, err := client.Get(ctx, ref.TypeName, ref.Name, cc)
	cmd := kubectlRefCommand("get", ref, cc, []string{"-o", "yaml"}, out, err, "yaml")
	if err == nil {
		return "", []*Command{cmd}, fmt.Errorf("expected %s %q to be absent, but it was found:\n%s", ref.TypeName, ref.Name, out)
	}
	var nf *clusterclient.NotFoundError
	if isNotFound(err, &nf) {
		return fmt.Sprintf("%s %q absent (NotFound)", ref.TypeName, ref.Name), []*Command{cmd}, nil
	}
	return "", []*Command{cmd}, err
}

// AssertList lists resources of kind, verifies each result's kind matches,
// and invokes test against the YAML-encoded list.
func AssertList(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, typeName string, test func(list string) error) (string, []*Command, error) {
	out, err := client.List(ctx, typeName, cc)
	cmd := kubectlRefCommand("get", Reference{TypeName: typeName}, cc, []string{"-o", "yaml"}, out, err, "yaml")
	if err != nil {
		return "", []*Command{cmd}, err
	}
	var list map[string]any
	if err := sigsyaml.Unmarshal([]byte(out), &list); err != nil {
		return "", []*Command{cmd}, fmt.Errorf("parsing list: %w", err)
	}
	items, _, _ := unstructured.NestedSlice(list, "items")
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		u := &unstructured.Unstructured{Object: item}
		if got := clusterclient.TypeName(u.GroupVersionKind()); got != typeName {
			return "", []*Command{cmd}, fmt.Errorf("list item %q has kind %s, expected %s", u.GetName(), got, typeName)
		}
	}
	if err := test(out); err != nil {
		return "", []*Command{cmd}, err
	}
	return out, []*Command{cmd}, nil
}

// AssertOne lists resources of kind, optionally filters with where, requires
// exactly one survivor, and invokes test against it.
func AssertOne(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, typeName string, where func(item map[string]any) bool, test func(item string) error) (string, []*Command, error) {
	out, err := client.List(ctx, typeName, cc)
	cmd := kubectlRefCommand("get", Reference{TypeName: typeName}, cc, []string{"-o", "yaml"}, out, err, "yaml")
	if err != nil {
		return "", []*Command{cmd}, err
	}
	var list map[string]any
	if err := sigsyaml.Unmarshal([]byte(out), &list); err != nil {
		return "", []*Command{cmd}, fmt.Errorf("parsing list: %w", err)
	}
	items, _, _ := unstructured.NestedSlice(list, "items")

	var matches []map[string]any
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if where == nil || where(item) {
			matches = append(matches, item)
		}
	}
	if len(matches) != 1 {
		return "", []*Command{cmd}, fmt.Errorf("expected exactly one %s, found %d", typeName, len(matches))
	}

	itemYAML, err := manifestToYAML(matches[0])
	if err != nil {
		return "", []*Command{cmd}, err
	}
	if err := test(itemYAML); err != nil {
		return "", []*Command{cmd}, err
	}
	return itemYAML, []*Command{cmd}, nil
}

// AssertApplyError attempts an apply; if it unexpectedly succeeds, the
// object is deleted immediately and an UnexpectedSuccessError is returned
// so the caller's retry wrapper tries again; if it fails, test is invoked
// with the error. Registers no revert on the expected-error path.
func AssertApplyError(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, raw any, test func(err error) error) (output string, cmds []*Command, rev *Revert, err error) {
	return assertOpError(ctx, client, cc, raw, "Apply", "apply", client.Apply, test)
}

// AssertCreateError is AssertApplyError's create-based counterpart.
func AssertCreateError(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, raw any, test func(err error) error) (output string, cmds []*Command, rev *Revert, err error) {
	return assertOpError(ctx, client, cc, raw, "Create", "create", client.Create, test)
}

type clusterOp func(ctx context.Context, obj *unstructured.Unstructured, cc clustercontext.Context) (string, error)

func assertOpError(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, raw any, verb, kubectlVerb string, op clusterOp, test func(err error) error) (string, []*Command, *Revert, error) {
	obj, err := manifest.ParseAny(raw)
	if err != nil {
		return "", nil, nil, err
	}
	typeName := clusterclient.TypeName(obj.GroupVersionKind())
	name := obj.GetName()

	out, opErr := op(ctx, obj, cc)
	cmd := kubectlManifestCommand(kubectlVerb, obj, cc, nil, out, opErr)

	if opErr == nil {
		// Unexpectedly succeeded: revert immediately, then signal the
		// scenario runtime to retry by returning a distinguished error.
		rev := deleteRevert(client, cc, typeName, name)
		if _, err := rev.Run(ctx); err != nil {
			return "", []*Command{cmd}, nil, fmt.Errorf("reverting unexpected success of %s %s %s: %w", verb, typeName, name, err)
		}
		return "", []*Command{cmd}, nil, &UnexpectedSuccessError{Operation: verb, TypeName: typeName, Name: name}
	}

	if err := test(opErr); err != nil {
		return "", []*Command{cmd}, nil, err
	}
	return out, []*Command{cmd}, nil, nil
}

// NamespaceInput is ApplyNamespace/CreateNamespace's input: Name pins an
// exact name, GeneratePrefix requests a generated name with that prefix,
// and the zero value requests the engine's own default prefix.
type NamespaceInput struct {
	Name           string
	GeneratePrefix string
}

// DefaultNamespacePrefix is used when NamespaceInput is the zero value.
const DefaultNamespacePrefix = "kest-"

// ResolveNamespaceName turns a NamespaceInput into a concrete name,
// generating one when Name is empty.
func ResolveNamespaceName(in NamespaceInput) string {
	if in.Name != "" {
		return in.Name
	}
	prefix := in.GeneratePrefix
	if prefix == "" {
		prefix = DefaultNamespacePrefix
	}
	return randname.WithPrefix(prefix)
}

// NamespaceManifest builds the minimal Namespace manifest for name.
func NamespaceManifest(name string) map[string]any {
	return map[string]any{
		"apiVersion": "v1",
		"kind":       "Namespace",
		"metadata":   map[string]any{"name": name},
	}
}

// Shell is the callable shell-adapter port Exec provides its do/revert
// callbacks: a $-style function capturing a templated shell command line and
// returning a promise-like handle whose Quiet suppresses streaming output.
type Shell func(command string) *ShellHandle

// ShellHandle wraps a shellrunner.Handle so Exec can observe the commands
// its do/revert callbacks run and fold each one into the action's own
// command events, the way a manifest-driven action's kubectl line is.
type ShellHandle struct {
	inner   *shellrunner.Handle
	observe func(shellrunner.Result, error)
}

// Quiet suppresses streaming output, same as shellrunner.Handle.Quiet.
func (h *ShellHandle) Quiet() *ShellHandle {
	h.inner.Quiet()
	return h
}

// Wait runs the command to completion and records it as a Command, unless
// Quiet was called.
func (h *ShellHandle) Wait() (shellrunner.Result, error) {
	res, err := h.inner.Wait()
	if h.observe != nil && !h.inner.IsQuiet() {
		h.observe(res, err)
	}
	return res, err
}

func shellCommand(res shellrunner.Result, runErr error) *Command {
	cmd := &Command{
		Cmd: res.Cmd, Args: res.Args, ExitCode: res.ExitCode,
		Stdout: res.Stdout, StdoutLanguage: "text",
		Stderr: res.Stderr, StderrLanguage: "text",
	}
	if runErr != nil && cmd.ExitCode == 0 {
		cmd.ExitCode = 1
	}
	return cmd
}

// ExecInput is Exec's input. Do and Revert are each handed a Shell they may
// call any number of times to run commands through the shell adapter.
type ExecInput struct {
	Describe string
	Do       func(ctx context.Context, sh Shell) (output string, err error)
	Revert   func(ctx context.Context, sh Shell) error
}

// Exec invokes the user's do callback under the shell adapter and registers
// revert (or a no-op when none was supplied). Every non-quiet shell command
// do or revert runs becomes a Command this action reports.
func Exec(ctx context.Context, in ExecInput) (output string, cmds []*Command, rev *Revert, err error) {
	var recorded []*Command
	observe := func(res shellrunner.Result, runErr error) { recorded = append(recorded, shellCommand(res, runErr)) }
	sh := func(command string) *ShellHandle {
		return &ShellHandle{inner: shellrunner.New(ctx, command), observe: observe}
	}

	out, doErr := in.Do(ctx, sh)
	if doErr != nil {
		return "", recorded, nil, doErr
	}

	describe := in.Describe
	if describe == "" {
		describe = "Revert"
	}
	if in.Revert == nil {
		return out, recorded, &Revert{Describe: describe, Run: func(context.Context) (*Command, error) { return nil, nil }}, nil
	}
	return out, recorded, &Revert{Describe: describe, Run: func(ctx context.Context) (*Command, error) {
		before := len(recorded)
		err := in.Revert(ctx, sh)
		var cmd *Command
		if len(recorded) > before {
			cmd = recorded[len(recorded)-1]
		}
		return cmd, err
	}}, nil
}

// AssertReady polls (via the caller's retry wrapper) until the resource
// reports a Current/Ready status.
func AssertReady(ctx context.Context, client clusterclient.ClusterClient, cc clustercontext.Context, ref Reference) (string, []*Command, error) {
	assertErr := client.AssertReady(ctx, ref.TypeName, ref.Name, cc)
	out := ""
	if assertErr == nil {
		out = fmt.Sprintf("%s %q ready", ref.TypeName, ref.Name)
	}
	cmd := kubectlRefCommand("get", ref, cc, []string{"-o", "yaml"}, out, assertErr, "yaml")
	if assertErr != nil {
		return "", []*Command{cmd}, assertErr
	}
	return out, []*Command{cmd}, nil
}

func isNotFound(err error, target **clusterclient.NotFoundError) bool {
	for e := err; e != nil; {
		if nf, ok := e.(*clusterclient.NotFoundError); ok {
			*target = nf
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return strings.Contains(err.Error(), "(NotFound)")
}

func manifestToYAML(obj map[string]any) (string, error) {
	b, err := sigsyaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshaling item to YAML: %w", err)
	}
	return string(b), nil
}
