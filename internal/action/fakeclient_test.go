package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashmap-kz/kscenario/internal/clustercontext"
	"github.com/hashmap-kz/kscenario/internal/clusterclient"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	sigsyaml "sigs.k8s.io/yaml"
)

// fakeClient is a minimal in-memory ClusterClient sufficient for exercising
// this package's action bodies without a live cluster.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string]*unstructured.Unstructured // keyed by typeName+"/"+name
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: map[string]*unstructured.Unstructured{}}
}

func key(typeName, name string) string { return typeName + "/" + name }

func (f *fakeClient) Extend(_ context.Context, _ clustercontext.Context) (clusterclient.ClusterClient, error) {
	return f, nil
}

func (f *fakeClient) Apply(_ context.Context, obj *unstructured.Unstructured, _ clustercontext.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	typeName := clusterclient.TypeName(obj.GroupVersionKind())
	k := key(typeName, obj.GetName())
	if _, exists := f.objects[k]; exists {
		return "", fmt.Errorf("%s %q already exists", typeName, obj.GetName())
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
	for k, obj := range f.objects {
		if len(k) > len(typeName) && k[:len(typeName)+1] == typeName+"/" {
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
	if _, ok := f.objects[key(typeName, name)]; !ok {
		return &clusterclient.NotFoundError{TypeName: typeName, Name: name}
	}
	return nil
}

func toYAML(obj *unstructured.Unstructured) (string, error) {
	b, err := sigsyaml.Marshal(obj.Object)
	return string(b), err
}
