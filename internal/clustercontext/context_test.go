package clustercontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverrideLayersNonEmptyFieldsOnly(t *testing.T) {
	base := Context{Namespace: "default", Kubeconfig: "~/.kube/config", FieldManagerName: "kscenario"}
	layered := base.Override(Context{Namespace: "ns1"})

	assert.Equal(t, "ns1", layered.Namespace)
	assert.Equal(t, "~/.kube/config", layered.Kubeconfig)
	assert.Equal(t, "kscenario", layered.FieldManagerName)

	// base is untouched
	assert.Equal(t, "default", base.Namespace)
}

func TestOverrideEmptyRecordChangesNothing(t *testing.T) {
	base := Context{Namespace: "ns1", KubeContext: "kind-test"}
	assert.Equal(t, base, base.Override(Context{}))
}

func TestWithNamespace(t *testing.T) {
	base := Context{Namespace: "ns1"}
	assert.Equal(t, "ns2", base.WithNamespace("ns2").Namespace)
}
