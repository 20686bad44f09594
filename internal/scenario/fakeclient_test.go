package scenario

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashmap-kz/kscenario/internal/clustercontext"
	"github.com/hashmap-kz/kscenario/internal/clusterclient"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	sigsyaml "sigs.k8s.io/yaml"
)

// fakeClient is a minimal in-memory ClusterClient, independent of
// internal/action's own fake, sufficient to exercise the Scenario wrapping
// pattern end to end without a live cluster.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string]*unstructured.Unstructured

	// createAttempts counts calls to Create, for tests of the
	// namespace-collision-retry behavior.
	createAttempts int
	// failCreateTimes, while positive, makes Create fail with "already
	// exists" regardless of the name it was called with (simulating a
	// collision against cluster state this fake doesn't otherwise model),
	// decrementing on each such call.
	failCreateTimes int
	// createdNames records every name Create was asked to create, across
	// every attempt, in call order.
	createdNames []string
	// applyQueue, while non-empty, supplies the error for the next N Apply
	// calls (nil meaning "let it succeed normally"), then falls back to
	// always succeeding.
	applyQueue []error
	// readyAfter, when set, makes AssertReady fail until it has been called
	// this many times for the given key.
	readyAfter map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		objects:    map[string]*unstructured.Unstructured{},
		readyAfter: map[string]int{},
	}
}

func key(typeName, name string) string { return typeName + "/" + name }

func (f *fakeClient) Extend(_ context.Context, _ clustercontext.Context) (clusterclient.ClusterClient, error) {
	return f, nil
}

func (f *fakeClient) Apply(_ context.Context, obj *unstructured.Unstructured, _ clustercontext.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applyQueue) > 0 {
		err := f.applyQueue[0]
		f.applyQueue = f.applyQueue[1:]
		if err != nil {
			return "", err
		}
	}
	typeName := clusterclient.TypeName(obj.GroupVersionKind())
	f.objects[key(typeName, obj.GetName())] = obj.DeepCopy()
	return toYAML(obj)
}

func (f *fakeClient) ApplyStatus(ctx context.Context, obj *unstructured.Unstructured, cc clustercontext.Context) (string, error) {
	return f.Apply(ctx, obj, cc)
}

func (f *fakeClient) Create(_ context.Context, obj *unstructured.Unstructured, _ clustercontext.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createAttempts++
	typeName := clusterclient.TypeName(obj.GroupVersionKind())
	name := obj.GetName()
	f.createdNames = append(f.createdNames, name)
	k := key(typeName, name)
	if _, exists := f.objects[k]; exists {
		return "", fmt.Errorf("%s %q already exists", typeName, name)
	}
	if f.failCreateTimes > 0 {
		f.failCreateTimes--
		return "", fmt.Errorf("%s %q already exists", typeName, name)
	}
	f.objects[k] = obj.DeepCopy()
	return toYAML(obj)
}

func (f *fakeClient) Get(_ context.Context, typeName, name string, _ clustercontext.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key(typeName, name)]
	if !ok {
		return "", &clusterclient.NotFoundError{TypeName: typeName, Name: name}
	}
	return toYAML(obj)
}

func (f *fakeClient) List(_ context.Context, typeName string, _ clustercontext.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []any
	prefix := typeName + "/"
	for k, obj := range f.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			items = append(items, obj.Object)
		}
	}
	list := map[string]any{"apiVersion": "v1", "kind": "List", "items": items}
	b, err := sigsyaml.Marshal(list)
	return string(b), err
}

func (f *fakeClient) Patch(_ context.Context, typeName, name string, _ []byte, _ clusterclient.PatchOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key(typeName, name)]
	if !ok {
		return "", &clusterclient.NotFoundError{TypeName: typeName, Name: name}
	}
	return toYAML(obj)
}

func (f *fakeClient) Delete(_ context.Context, typeName, name string, opts clusterclient.DeleteOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(typeName, name)
	if _, ok := f.objects[k]; !ok {
		if opts.IgnoreNotFound {
			return "already absent (NotFound)", nil
		}
		return "", &clusterclient.NotFoundError{TypeName: typeName, Name: name}
	}
	delete(f.objects, k)
	return fmt.Sprintf("%s %q deleted", typeName, name), nil
}

func (f *fakeClient) Label(_ context.Context, typeName, name string, labels map[string]*string, _ clusterclient.LabelOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key(typeName, name)]
	if !ok {
		return "", &clusterclient.NotFoundError{TypeName: typeName, Name: name}
	}
	current := obj.GetLabels()
	if current == nil {
		current = map[string]string{}
	}
	for k, v := range labels {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = *v
	}
	obj.SetLabels(current)
	return toYAML(obj)
}

func (f *fakeClient) AssertReady(_ context.Context, typeName, name string, _ clustercontext.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(typeName, name)
	if _, ok := f.objects[k]; !ok {
		return &clusterclient.NotFoundError{TypeName: typeName, Name: name}
	}
	if need, ok := f.readyAfter[k]; ok && need > 0 {
		f.readyAfter[k] = need - 1
		return fmt.Errorf("%s %q not ready yet", typeName, name)
	}
	return nil
}

// existingNames returns the set of names currently stored for typeName, for
// assertions in tests.
func (f *fakeClient) existingNames(typeName string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	prefix := typeName + "/"
	for k := range f.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	return out
}

func toYAML(obj *unstructured.Unstructured) (string, error) {
	b, err := sigsyaml.Marshal(obj.Object)
	return string(b), err
}
