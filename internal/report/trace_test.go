package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFramesAcceptsAllThreeForms(t *testing.T) {
	stack := `Error: boom
at doApply (internal/action/action.go:42:7)
at internal/scenario/scenario.go:88:3
at (native:1:1)
   ^^^^
+added line in a diff
`
	frames := parseFrames(stack)
	require.Len(t, frames, 3)
	assert.Equal(t, "doApply", frames[0].funcName)
	assert.Equal(t, "internal/action/action.go", frames[0].filePath)
	assert.Equal(t, 42, frames[0].line)
	assert.Equal(t, 7, frames[0].col)

	assert.Equal(t, "", frames[1].funcName)
	assert.Equal(t, "internal/scenario/scenario.go", frames[1].filePath)

	assert.Equal(t, "native", frames[2].filePath)
}

func TestParseFramesStripsAsyncKeyword(t *testing.T) {
	frames := parseFrames("at async doApply (cmd/kscenario/main.go:1:1)")
	require.Len(t, frames, 1)
	assert.Equal(t, "doApply", frames[0].funcName)
}

func TestSelectUserFrameSkipsCoreAndNodeModulesAndNative(t *testing.T) {
	frames := []frame{
		{filePath: "native:1:1", line: 1, col: 1},
		{filePath: "<anonymous>", line: 1, col: 1},
		{filePath: "vendor/node_modules/x/y.go", line: 1, col: 1},
		{filePath: "internal/action/action.go", line: 1, col: 1},
		{filePath: "cmd/kscenario/main.go", line: 5, col: 2},
	}
	f, ok := selectUserFrame(frames, "/repo")
	require.True(t, ok)
	assert.Equal(t, "cmd/kscenario/main.go", f.filePath)
}

func TestSelectUserFrameExcludesWorkspaceCorePrefix(t *testing.T) {
	frames := []frame{
		{filePath: "/repo/internal/action/action.go", line: 1, col: 1},
		{filePath: "/repo/cmd/kscenario/main.go", line: 3, col: 1},
	}
	f, ok := selectUserFrame(frames, "/repo")
	require.True(t, ok)
	assert.Equal(t, "/repo/cmd/kscenario/main.go", f.filePath)
}

func TestRenderTraceIncludesSourceContextWhenReadable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scenario.go")
	content := "line1\nline2\nline3\ntarget\nline5\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	stack := "at doThing (" + file + ":4:3)"
	rendered := RenderTrace(stack, "")
	assert.Contains(t, rendered, "target")
	assert.Contains(t, rendered, "^")
	assert.Contains(t, rendered, "at doThing "+file+":4:3")
}

func TestRenderTraceDegradesToFrameOnlyWhenFileUnreadable(t *testing.T) {
	rendered := RenderTrace("at doThing (/does/not/exist.go:1:1)", "")
	assert.Equal(t, "at doThing /does/not/exist.go:1:1", rendered)
}
