package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/kscenario/internal/recorder"
)

func TestRenderColorizedStripsToPlainOutput(t *testing.T) {
	rec := recorder.New()
	rec.ScenarioStart("apply-and-assert")
	rec.ActionStart("Apply ConfigMap cm")
	rec.CommandRun("kubectl", []string{"apply", "-f", "-"}, "kind: ConfigMap\nmetadata:\n  name: cm", "yaml")
	rec.CommandResult(0, "configmap/cm created", "", "text", "")
	rec.ActionEnd(true, nil)
	rec.ScenarioEnd()

	rpt := Parse(rec.Events())
	plain := Render(rpt, "")

	colored, err := RenderColorized(rpt, "")
	require.NoError(t, err)

	assert.Equal(t, plain, stripANSI(colored))
}

func TestRenderColorizedEmptyReportIsEmptyString(t *testing.T) {
	colored, err := RenderColorized(&Report{}, "")
	require.NoError(t, err)
	assert.Equal(t, "", colored)
}

func TestHighlightCodePreservesBytes(t *testing.T) {
	code := "kind: ConfigMap\nmetadata:\n  name: cm\n"
	highlighted := highlightCode(code, "yaml", 0)
	assert.Equal(t, code, stripANSI(highlighted))
}

func TestIsStdinPlaceholderRecognizesOwnTokens(t *testing.T) {
	assert.True(t, isStdinPlaceholder(stdinPlaceholder(0)))
	assert.True(t, isStdinPlaceholder(stdinPlaceholder(12)))
	assert.False(t, isStdinPlaceholder("not a placeholder"))
}
