package clusterclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestTypeNameCoreGroup(t *testing.T) {
	assert.Equal(t, "ConfigMap", TypeName(schema.GroupVersionKind{Version: "v1", Kind: "ConfigMap"}))
}

func TestTypeNameNonCoreGroup(t *testing.T) {
	gvk := schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}
	assert.Equal(t, "Deployment.v1.apps", TypeName(gvk))
}

func TestTypeNameGroupWithDots(t *testing.T) {
	gvk := schema.GroupVersionKind{Group: "pkg.crossplane.io", Version: "v1", Kind: "Provider"}
	assert.Equal(t, "Provider.v1.pkg.crossplane.io", TypeName(gvk))
}

func TestParseTypeNameRoundTrip(t *testing.T) {
	cases := []schema.GroupVersionKind{
		{Version: "v1", Kind: "ConfigMap"},
		{Group: "apps", Version: "v1", Kind: "Deployment"},
		{Group: "pkg.crossplane.io", Version: "v1", Kind: "Provider"},
	}
	for _, gvk := range cases {
		assert.Equal(t, gvk, ParseTypeName(TypeName(gvk)))
	}
}
