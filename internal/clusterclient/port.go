package clusterclient

import (
	"context"
	"fmt"

	"github.com/hashmap-kz/kscenario/internal/clustercontext"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ClusterClient is the cluster-client port every action (internal/action)
// drives: the sole boundary between the engine and a live Kubernetes API
// server, deliberately narrow so a fake implementation can back tests
// without a cluster.
type ClusterClient interface {
	// Extend returns a client view with override layered onto the
	// receiver's default context. A Kubeconfig/KubeContext override
	// rebinds the underlying connection; any other override field just
	// changes what gets layered onto future calls.
	Extend(ctx context.Context, override clustercontext.Context) (ClusterClient, error)

	Apply(ctx context.Context, obj *unstructured.Unstructured, override clustercontext.Context) (string, error)
	ApplyStatus(ctx context.Context, obj *unstructured.Unstructured, override clustercontext.Context) (string, error)
	Create(ctx context.Context, obj *unstructured.Unstructured, override clustercontext.Context) (string, error)
	Get(ctx context.Context, typeName, name string, override clustercontext.Context) (string, error)
	List(ctx context.Context, typeName string, override clustercontext.Context) (string, error)
	Patch(ctx context.Context, typeName, name string, patch []byte, opts PatchOptions) (string, error)
	Delete(ctx context.Context, typeName, name string, opts DeleteOptions) (string, error)
	Label(ctx context.Context, typeName, name string, labels map[string]*string, opts LabelOptions) (string, error)

	// AssertReady is this implementation's addition to the catalogue
	// (SPEC_FULL §4.5): a single-shot readiness predicate meant to be
	// driven by the retry engine rather than a separate polling loop.
	AssertReady(ctx context.Context, typeName, name string, override clustercontext.Context) error
}

// PatchOptions configures Patch. Type defaults to a JSON merge patch when
// empty; Context layers onto the client's default context for this call.
type PatchOptions struct {
	Type    string
	Context clustercontext.Context
}

// DeleteOptions configures Delete.
type DeleteOptions struct {
	IgnoreNotFound bool
	Context        clustercontext.Context
}

// LabelOptions configures Label. A nil map value removes that label.
type LabelOptions struct {
	Overwrite bool
	Context   clustercontext.Context
}

// NotFoundError is the cluster-client port's explicit not-found protocol:
// its message always contains the literal substring "(NotFound)" so
// AssertAbsence (internal/action) can recognize it without inspecting a Go
// error type across the port boundary.
type NotFoundError struct {
	TypeName string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found (NotFound)", e.TypeName, e.Name)
}
