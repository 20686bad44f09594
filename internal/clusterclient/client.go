// Package clusterclient implements the cluster-client port (ClusterClient)
// against a live Kubernetes API server, generalized from the teacher's
// single-shot "apply a fixed plan of manifests" algorithm into the eight
// general-purpose methods the engine's action taxonomy drives.
package clusterclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/hashmap-kz/kscenario/internal/clustercontext"
	"github.com/hashmap-kz/kscenario/internal/klog"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/ptr"
	kstatus "sigs.k8s.io/cli-utils/pkg/kstatus/status"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
	sigsyaml "sigs.k8s.io/yaml"
)

// DefaultFieldManager names this engine's writes when the caller's context
// doesn't set FieldManagerName explicitly.
const DefaultFieldManager = "kscenario"

// Client is the concrete ClusterClient. The zero value is not usable; build
// one with New.
type Client struct {
	cfg      *rest.Config
	dyn      dynamic.Interface
	mapper   *restmapper.DeferredDiscoveryRESTMapper
	crClient ctrlclient.Reader
	defaultC clustercontext.Context
	logger   logr.Logger
}

// New builds a Client from a REST config and the context it should use as
// its default when a call supplies no override. The client logs diagnostic
// noise (discovery cache resets, connection fallbacks) through klog.Discard
// until SetLogger replaces it.
func New(cfg *rest.Config, defaultContext clustercontext.Context) (*Client, error) {
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building dynamic client: %w", err)
	}
	disc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(disc))

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("building scheme: %w", err)
	}
	crClient, err := ctrlclient.New(cfg, ctrlclient.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("building controller-runtime reader: %w", err)
	}

	return &Client{cfg: cfg, dyn: dyn, mapper: mapper, crClient: crClient, defaultC: defaultContext, logger: klog.Discard()}, nil
}

// SetLogger replaces the client's diagnostic logger (klog.Discard by
// default).
func (c *Client) SetLogger(l logr.Logger) {
	c.logger = l
}

// BuildRESTConfig resolves a *rest.Config the way the teacher's main.go
// does: in-cluster config first, falling back to a kubeconfig file (and,
// when set, a named context) otherwise.
func BuildRESTConfig(logger logr.Logger, kubeconfigPath, kubeContext string) (*rest.Config, error) {
	if kubeconfigPath == "" && kubeContext == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
		logger.V(1).Info("no in-cluster config available, falling back to kubeconfig")
	}
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}
	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

// Extend implements ClusterClient.Extend. A Kubeconfig/KubeContext override
// rebuilds the underlying connection (a new *rest.Config, hence a fresh,
// cycle-free Client); any other override just layers onto the existing
// connection's default context.
func (c *Client) Extend(_ context.Context, override clustercontext.Context) (ClusterClient, error) {
	merged := c.defaultC.Override(override)
	if override.Kubeconfig == "" && override.KubeContext == "" {
		return &Client{cfg: c.cfg, dyn: c.dyn, mapper: c.mapper, crClient: c.crClient, defaultC: merged, logger: c.logger}, nil
	}
	cfg, err := BuildRESTConfig(c.logger, merged.Kubeconfig, merged.KubeContext)
	if err != nil {
		return nil, fmt.Errorf("extending cluster client: %w", err)
	}
	extended, err := New(cfg, merged)
	if err != nil {
		return nil, err
	}
	extended.logger = c.logger
	return extended, nil
}

func (c *Client) resourceFor(gvk schema.GroupVersionKind, namespace string) (dynamic.ResourceInterface, error) {
	m, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		c.logger.V(1).Info("REST mapping miss, resetting discovery cache and retrying", "gvk", gvk.String())
		c.mapper.Reset()
		m, err = c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return nil, fmt.Errorf("could not map GVK %v: %w", gvk, err)
		}
	}
	if m.Scope.Name() == meta.RESTScopeNameNamespace {
		return c.dyn.Resource(m.Resource).Namespace(namespace), nil
	}
	return c.dyn.Resource(m.Resource), nil
}

func (c *Client) fieldManager(override clustercontext.Context) string {
	merged := c.defaultC.Override(override)
	if merged.FieldManagerName != "" {
		return merged.FieldManagerName
	}
	return DefaultFieldManager
}

func (c *Client) namespaceFor(obj *unstructured.Unstructured, override clustercontext.Context) string {
	if ns := obj.GetNamespace(); ns != "" {
		return ns
	}
	return c.defaultC.Override(override).Namespace
}

// Apply performs a server-side apply Patch, creating the object if absent.
func (c *Client) Apply(ctx context.Context, obj *unstructured.Unstructured, override clustercontext.Context) (string, error) {
	return c.apply(ctx, obj, override, "")
}

// ApplyStatus performs a server-side apply Patch against the status
// subresource. Requires FieldManagerName in the merged context and a
// non-empty status field on obj.
func (c *Client) ApplyStatus(ctx context.Context, obj *unstructured.Unstructured, override clustercontext.Context) (string, error) {
	merged := c.defaultC.Override(override)
	if merged.FieldManagerName == "" {
		return "", fmt.Errorf("applyStatus requires fieldManagerName in context")
	}
	if _, found, _ := unstructured.NestedMap(obj.Object, "status"); !found {
		return "", fmt.Errorf("applyStatus requires manifest to include status")
	}
	return c.apply(ctx, obj, override, "status")
}

func (c *Client) apply(ctx context.Context, obj *unstructured.Unstructured, override clustercontext.Context, subresource string) (string, error) {
	ns := c.namespaceFor(obj, override)
	obj.SetNamespace(ns)
	dr, err := c.resourceFor(obj.GroupVersionKind(), ns)
	if err != nil {
		return "", err
	}
	objJSON, err := json.Marshal(obj.Object)
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}

	patchOpts := metav1.PatchOptions{FieldManager: c.fieldManager(override), Force: ptr.To(true)}
	var result *unstructured.Unstructured
	if subresource == "" {
		result, err = dr.Patch(ctx, obj.GetName(), types.ApplyPatchType, objJSON, patchOpts)
	} else {
		result, err = dr.Patch(ctx, obj.GetName(), types.ApplyPatchType, objJSON, patchOpts, subresource)
	}
	if err != nil {
		return "", wrapNotFound(err, TypeName(obj.GroupVersionKind()), obj.GetName())
	}
	return toYAML(result)
}

// Create fails if the object already exists, unlike Apply.
func (c *Client) Create(ctx context.Context, obj *unstructured.Unstructured, override clustercontext.Context) (string, error) {
	ns := c.namespaceFor(obj, override)
	obj.SetNamespace(ns)
	dr, err := c.resourceFor(obj.GroupVersionKind(), ns)
	if err != nil {
		return "", err
	}
	result, err := dr.Create(ctx, obj, metav1.CreateOptions{FieldManager: c.fieldManager(override)})
	if err != nil {
		return "", err
	}
	return toYAML(result)
}

// Get fetches one object by typeName + name and returns it YAML-encoded.
func (c *Client) Get(ctx context.Context, typeName, name string, override clustercontext.Context) (string, error) {
	gvk := ParseTypeName(typeName)
	ns := c.defaultC.Override(override).Namespace
	dr, err := c.resourceFor(gvk, ns)
	if err != nil {
		return "", err
	}
	result, err := dr.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", wrapNotFound(err, typeName, name)
	}
	return toYAML(result)
}

// List returns every object of typeName's kind, YAML-encoded as a list.
func (c *Client) List(ctx context.Context, typeName string, override clustercontext.Context) (string, error) {
	gvk := ParseTypeName(typeName)
	ns := c.defaultC.Override(override).Namespace
	dr, err := c.resourceFor(gvk, ns)
	if err != nil {
		return "", err
	}
	result, err := dr.List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", err
	}
	b, err := sigsyaml.Marshal(result.UnstructuredContent())
	if err != nil {
		return "", fmt.Errorf("marshaling list to YAML: %w", err)
	}
	return string(b), nil
}

// Patch applies an arbitrary patch document; Type defaults to a JSON merge
// patch when opts.Type is empty.
func (c *Client) Patch(ctx context.Context, typeName, name string, patch []byte, opts PatchOptions) (string, error) {
	gvk := ParseTypeName(typeName)
	ns := c.defaultC.Override(opts.Context).Namespace
	dr, err := c.resourceFor(gvk, ns)
	if err != nil {
		return "", err
	}
	patchType := types.MergePatchType
	if opts.Type != "" {
		patchType = types.PatchType(opts.Type)
	}
	result, err := dr.Patch(ctx, name, patchType, patch, metav1.PatchOptions{FieldManager: c.fieldManager(opts.Context)})
	if err != nil {
		return "", wrapNotFound(err, typeName, name)
	}
	return toYAML(result)
}

// Delete removes one object by typeName + name.
func (c *Client) Delete(ctx context.Context, typeName, name string, opts DeleteOptions) (string, error) {
	gvk := ParseTypeName(typeName)
	ns := c.defaultC.Override(opts.Context).Namespace
	dr, err := c.resourceFor(gvk, ns)
	if err != nil {
		return "", err
	}
	err = dr.Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) && opts.IgnoreNotFound {
			return fmt.Sprintf("%s %q already absent (NotFound)", typeName, name), nil
		}
		return "", wrapNotFound(err, typeName, name)
	}
	return fmt.Sprintf("%s %q deleted", typeName, name), nil
}

// Label adds, overwrites, or removes labels. A nil map value removes that
// label; any other value sets it.
func (c *Client) Label(ctx context.Context, typeName, name string, labels map[string]*string, opts LabelOptions) (string, error) {
	gvk := ParseTypeName(typeName)
	ns := c.defaultC.Override(opts.Context).Namespace
	dr, err := c.resourceFor(gvk, ns)
	if err != nil {
		return "", err
	}

	obj, err := dr.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", wrapNotFound(err, typeName, name)
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
		if _, exists := current[k]; exists && !opts.Overwrite {
			return "", fmt.Errorf("label %q already set; pass overwrite to replace it", k)
		}
		current[k] = *v
	}
	obj.SetLabels(current)

	result, err := dr.Update(ctx, obj, metav1.UpdateOptions{FieldManager: c.fieldManager(opts.Context)})
	if err != nil {
		return "", err
	}
	return toYAML(result)
}

// AssertReady fetches the object and evaluates cli-utils' kstatus compute
// against it, succeeding only once the resource reports CurrentStatus. It is
// a single-shot predicate: repeated polling is the retry engine's job
// (internal/retry), not this method's.
func (c *Client) AssertReady(ctx context.Context, typeName, name string, override clustercontext.Context) error {
	gvk := ParseTypeName(typeName)
	ns := c.defaultC.Override(override).Namespace
	dr, err := c.resourceFor(gvk, ns)
	if err != nil {
		return err
	}
	obj, err := dr.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return wrapNotFound(err, typeName, name)
	}
	result, err := kstatus.Compute(obj)
	if err != nil {
		return fmt.Errorf("computing status for %s %q: %w", typeName, name, err)
	}
	if result.Status != kstatus.CurrentStatus {
		return fmt.Errorf("%s %q not ready: %s (%s)", typeName, name, result.Status, result.Message)
	}
	return nil
}

func wrapNotFound(err error, typeName, name string) error {
	if apierrors.IsNotFound(err) {
		return &NotFoundError{TypeName: typeName, Name: name}
	}
	return err
}

func toYAML(obj runtime.Object) (string, error) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return "", fmt.Errorf("clusterclient: unexpected object type %T", obj)
	}
	b, err := sigsyaml.Marshal(u.Object)
	if err != nil {
		return "", fmt.Errorf("marshaling result to YAML: %w", err)
	}
	return string(b), nil
}
