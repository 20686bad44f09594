package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hashmap-kz/kscenario/internal/action"
	"github.com/hashmap-kz/kscenario/internal/clustercontext"
	"github.com/hashmap-kz/kscenario/internal/recorder"
	"github.com/hashmap-kz/kscenario/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(events []recorder.Event) []recorder.Kind {
	out := make([]recorder.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

const cmManifest = `
apiVersion: v1
kind: ConfigMap
metadata:
  name: cm
data:
  mode: demo
`

// Scenario 1: Apply-and-assert ConfigMap.
func TestApplyAndAssertConfigMap(t *testing.T) {
	client := newFakeClient()
	ctx := context.Background()

	s := New("apply-and-assert", client, clustercontext.Context{}, false)
	s.Given("an empty namespace")

	ns, err := s.NewNamespace(ctx, action.NamespaceInput{Name: "ns1"})
	require.NoError(t, err)

	ns.When("applying a ConfigMap")
	_, err = ns.Apply(ctx, cmManifest)
	require.NoError(t, err)

	ns.Then("it can be asserted")
	_, err = ns.Assert(ctx, action.Reference{TypeName: "ConfigMap", Name: "cm"}, func(resource string) error {
		if !strings.Contains(resource, "mode: demo") {
			return errors.New("mode mismatch")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Finish(ctx))

	events := s.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, recorder.KindScenarioStart, events[0].Kind)
	assert.Equal(t, recorder.KindScenarioEnd, events[len(events)-1].Kind)

	var actionEnds, revertingsStarts, revertingsEnds, commandRuns, commandResults int
	for _, e := range events {
		switch e.Kind {
		case recorder.KindActionEnd:
			actionEnds++
			assert.True(t, e.OK)
		case recorder.KindRevertingsStart:
			revertingsStarts++
		case recorder.KindRevertingsEnd:
			revertingsEnds++
		case recorder.KindCommandRun:
			commandRuns++
		case recorder.KindCommandResult:
			commandResults++
		}
	}
	assert.Equal(t, 1, revertingsStarts)
	assert.Equal(t, 1, revertingsEnds)
	// CreateNamespace, Apply, Assert forward actions + Delete ConfigMap, Delete Namespace cleanup actions.
	assert.Equal(t, 5, actionEnds)
	// Every one of those 5 actions issues exactly one kubectl call.
	assert.Equal(t, 5, commandRuns)
	assert.Equal(t, 5, commandResults)

	// Every CommandRun is immediately followed by its CommandResult, and the
	// Apply action's manifest is visible as the command's stdin.
	var sawApplyStdin bool
	for i, e := range events {
		if e.Kind == recorder.KindCommandRun {
			require.Less(t, i+1, len(events))
			assert.Equal(t, recorder.KindCommandResult, events[i+1].Kind)
			if strings.Contains(e.Stdin, "mode: demo") {
				sawApplyStdin = true
			}
		}
	}
	assert.True(t, sawApplyStdin)

	assert.Empty(t, client.existingNames("Namespace"))
	assert.Empty(t, client.existingNames("ConfigMap"))
}

// Scenario 2: Assert of a nonexistent resource times out and fails, but
// cleanup still runs.
func TestAssertOfNonexistentResourceFails(t *testing.T) {
	client := newFakeClient()
	ctx := context.Background()

	s := New("assert-missing", client, clustercontext.Context{}, false)
	_, err := s.Assert(ctx, action.Reference{TypeName: "ConfigMap", Name: "missing"}, func(string) error { return nil },
		retry.Options{Timeout: 50 * time.Millisecond, Interval: 10 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, s.Failed())

	require.NoError(t, s.Finish(ctx))

	var sawRetryEnd, sawActionEndFailure bool
	for _, e := range s.Events() {
		if e.Kind == recorder.KindRetryEnd {
			sawRetryEnd = true
			assert.False(t, e.Success)
		}
		if e.Kind == recorder.KindActionEnd && !e.OK {
			sawActionEndFailure = true
		}
	}
	assert.True(t, sawRetryEnd)
	assert.True(t, sawActionEndFailure)

	var sawRevertingsEnd bool
	for _, e := range s.Events() {
		if e.Kind == recorder.KindRevertingsEnd {
			sawRevertingsEnd = true
		}
	}
	assert.True(t, sawRevertingsEnd)
}

// Scenario 3: assertApplyError where the first attempt unexpectedly
// succeeds (reverted immediately, triggering a retry), and the second
// attempt fails as expected.
func TestAssertApplyErrorTransientAdmission(t *testing.T) {
	client := newFakeClient()
	client.applyQueue = []error{nil, errors.New("field is immutable")}
	ctx := context.Background()

	s := New("assert-apply-error", client, clustercontext.Context{}, false)
	var seen error
	_, err := s.AssertApplyError(ctx, cmManifest, func(e error) error {
		seen = e
		if !strings.Contains(e.Error(), "immutable") {
			return errors.New("unexpected error: " + e.Error())
		}
		return nil
	}, retry.Options{Timeout: time.Second, Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.Error(t, seen)
	assert.Contains(t, seen.Error(), "immutable")
	assert.Empty(t, client.existingNames("ConfigMap"))
}

// Scenario 4: namespace auto-creation retries past a name collision.
func TestNamespaceCollisionOnAutoCreate(t *testing.T) {
	client := newFakeClient()
	client.failCreateTimes = 1
	ctx := context.Background()

	s := New("namespace-collision", client, clustercontext.Context{}, false)
	name, _, err := s.CreateNamespace(ctx, action.NamespaceInput{},
		retry.Options{Timeout: time.Second, Interval: 5 * time.Millisecond})
	require.NoError(t, err)

	require.Len(t, client.createdNames, 2)
	assert.NotEqual(t, client.createdNames[0], client.createdNames[1])
	assert.Equal(t, client.createdNames[1], name)

	var retryStarts, retryEnds int
	for _, e := range s.Events() {
		if e.Kind == recorder.KindRetryStart {
			retryStarts++
		}
		if e.Kind == recorder.KindRetryEnd {
			retryEnds++
			assert.True(t, e.Success)
			assert.Equal(t, 1, e.Attempts)
		}
	}
	assert.Equal(t, 1, retryStarts)
	assert.Equal(t, 1, retryEnds)
}

// Scenario 5: cleanup ordering reverses registration order: Service,
// Deployment, ConfigMap were registered after the namespace, so they
// revert first, namespace last.
func TestCleanupOrdering(t *testing.T) {
	client := newFakeClient()
	ctx := context.Background()

	s := New("cleanup-ordering", client, clustercontext.Context{}, false)
	ns, err := s.NewNamespace(ctx, action.NamespaceInput{Name: "ns2"})
	require.NoError(t, err)

	_, err = ns.Apply(ctx, `{"apiVersion":"v1","kind":"ConfigMap","metadata":{"name":"cm"}}`)
	require.NoError(t, err)
	_, err = ns.Apply(ctx, `{"apiVersion":"apps/v1","kind":"Deployment","metadata":{"name":"dep"}}`)
	require.NoError(t, err)
	_, err = ns.Apply(ctx, `{"apiVersion":"v1","kind":"Service","metadata":{"name":"svc"}}`)
	require.NoError(t, err)

	require.NoError(t, s.Finish(ctx))

	var order []string
	for _, e := range s.Events() {
		if e.Kind == recorder.KindActionStart && strings.HasPrefix(e.Description, "Delete ") {
			order = append(order, e.Description)
		}
	}
	require.Equal(t, []string{
		"Delete Service svc",
		"Delete Deployment.v1.apps dep",
		"Delete ConfigMap cm",
		"Delete Namespace ns2",
	}, order)
}

// Scenario 6: preserve-on-failure leaves cleanup skipped.
func TestPreserveOnFailureSkipsCleanup(t *testing.T) {
	client := newFakeClient()
	ctx := context.Background()

	s := New("preserve-on-failure", client, clustercontext.Context{}, true)
	ns, err := s.NewNamespace(ctx, action.NamespaceInput{Name: "ns3"})
	require.NoError(t, err)

	_, err = ns.Apply(ctx, cmManifest)
	require.NoError(t, err)

	_, err = ns.Assert(ctx, action.Reference{TypeName: "ConfigMap", Name: "cm"}, func(resource string) error {
		return errors.New("mode should have been production")
	}, retry.Options{Timeout: 20 * time.Millisecond, Interval: 5 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, ns.Failed())
	assert.True(t, s.Failed())

	require.NoError(t, s.Finish(ctx))

	var sawSkipped, sawRevertingsStart bool
	for _, e := range s.Events() {
		if e.Kind == recorder.KindRevertingsSkipped {
			sawSkipped = true
		}
		if e.Kind == recorder.KindRevertingsStart {
			sawRevertingsStart = true
		}
	}
	assert.True(t, sawSkipped)
	assert.False(t, sawRevertingsStart)

	// Cluster state survives: the cleanup that would have removed it never ran.
	assert.NotEmpty(t, client.existingNames("Namespace"))
	assert.NotEmpty(t, client.existingNames("ConfigMap"))
}

func TestInvalidManifestSkipsRetryEntirely(t *testing.T) {
	client := newFakeClient()
	ctx := context.Background()

	s := New("invalid-manifest", client, clustercontext.Context{}, false)
	_, err := s.Apply(ctx, "not: [valid", retry.Options{Timeout: time.Second, Interval: 10 * time.Millisecond})
	require.Error(t, err)

	for _, e := range s.Events() {
		assert.NotEqual(t, recorder.KindRetryStart, e.Kind)
		assert.NotEqual(t, recorder.KindRetryEnd, e.Kind)
	}
}

func TestBDDAnnotationsRecordWithNoExecutionEffect(t *testing.T) {
	client := newFakeClient()
	s := New("bdd", client, clustercontext.Context{}, false)
	s.Given("a thing").When("it happens").Then("something follows").And("also this").But("not that")

	kindsSeen := kinds(s.Events())
	assert.Contains(t, kindsSeen, recorder.KindBDDGiven)
	assert.Contains(t, kindsSeen, recorder.KindBDDWhen)
	assert.Contains(t, kindsSeen, recorder.KindBDDThen)
	assert.Contains(t, kindsSeen, recorder.KindBDDAnd)
	assert.Contains(t, kindsSeen, recorder.KindBDDBut)
}
