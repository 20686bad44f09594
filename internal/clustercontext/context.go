// Package clustercontext defines the immutable configuration record layered
// onto every ClusterClient call: which namespace, which kubeconfig, which
// named context, and which field manager identifies server-side apply
// writes.
package clustercontext

// Context is the {namespace?, kubeconfig?, context?, fieldManagerName?}
// record described by the scenario runtime. The zero value means "inherit
// everything from the parent" when used as an override.
type Context struct {
	Namespace        string
	Kubeconfig       string
	KubeContext      string
	FieldManagerName string
}

// Override returns a new Context formed by layering the non-zero fields of
// o on top of c. Fields o leaves empty fall back to c's value; c itself is
// never mutated. This is the "contexts combine by field-wise override" rule.
func (c Context) Override(o Context) Context {
	out := c
	if o.Namespace != "" {
		out.Namespace = o.Namespace
	}
	if o.Kubeconfig != "" {
		out.Kubeconfig = o.Kubeconfig
	}
	if o.KubeContext != "" {
		out.KubeContext = o.KubeContext
	}
	if o.FieldManagerName != "" {
		out.FieldManagerName = o.FieldManagerName
	}
	return out
}

// WithNamespace returns a copy of c with Namespace set to ns.
func (c Context) WithNamespace(ns string) Context {
	return c.Override(Context{Namespace: ns})
}
