package clusterclient

import (
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// TypeName renders gvk using the port's naming rule: the core group
// (apiVersion "v1") renders as the bare kind; every other group renders as
// "<kind>.<version>.<group>".
func TypeName(gvk schema.GroupVersionKind) string {
	if gvk.Group == "" && gvk.Version == "v1" {
		return gvk.Kind
	}
	return gvk.Kind + "." + gvk.Version + "." + gvk.Group
}

// ParseTypeName is TypeName's inverse: it recovers a GroupVersionKind from
// the string the cluster-client port's get/list/patch/delete/label methods
// accept. Groups themselves may contain dots (e.g. "pkg.crossplane.io"), so
// only the first two dot-separated components are kind and version; the
// remainder, rejoined, is the group.
func ParseTypeName(typeName string) schema.GroupVersionKind {
	if !strings.Contains(typeName, ".") {
		return schema.GroupVersionKind{Version: "v1", Kind: typeName}
	}
	parts := strings.SplitN(typeName, ".", 3)
	gvk := schema.GroupVersionKind{Kind: parts[0]}
	if len(parts) > 1 {
		gvk.Version = parts[1]
	}
	if len(parts) > 2 {
		gvk.Group = parts[2]
	}
	return gvk
}
