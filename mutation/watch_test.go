package mutation

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// browserStub fakes just enough DOM for the watch script: a root element with
// three children, a tree walker over an element's children and a
// MutationObserver whose callback the test can fire.
const browserStub = `
var visited = [];
var observed = 0;
var lastObserver = null;
var window = {};
var NodeFilter = { SHOW_ELEMENT: 1 };
function MutationObserver(cb) { this.cb = cb; lastObserver = this; }
MutationObserver.prototype.observe = function () { observed++; };
MutationObserver.prototype.disconnect = function () {};
var document = {
  readyState: "complete",
  documentElement: { nodeType: 1, id: "root", children: [
    { nodeType: 1, id: "a" }, { nodeType: 1, id: "b" }, { nodeType: 1, id: "c" }
  ] },
  createTreeWalker: function (root) {
    var kids = root.children || [];
    var i = 0;
    return { nextNode: function () { return kids[i++] || null; } };
  },
  addEventListener: function () {}
};
`

func runWatch(t *testing.T, callback string) *goja.Runtime {
	t.Helper()
	script, err := WatchScript(callback)
	require.NoError(t, err)
	vm := goja.New()
	_, err = vm.RunString(browserStub + script)
	require.NoError(t, err)
	return vm
}

func visitedIDs(vm *goja.Runtime) []interface{} {
	return vm.Get("visited").Export().([]interface{})
}

func TestWatchScriptCompiles(t *testing.T) {
	for _, cb := range []string{
		HideMatching(`[aria-label="Who to follow"]`),
		RemoveMatching(".Searchbar", true),
		RemoveMatching(".Gallery-Sidebar", false),
	} {
		script, err := WatchScript(cb)
		require.NoError(t, err)
		_, err = goja.Compile("watch.js", script, false)
		assert.NoError(t, err, cb)
	}
}

func TestWatchIsolatesThrowingVisits(t *testing.T) {
	vm := runWatch(t, `    visited.push(node.id);
    if (node.id === "b") throw new Error("boom");`)

	assert.Equal(t, []interface{}{"root", "a", "b", "c"}, visitedIDs(vm))
	assert.EqualValues(t, 1, vm.Get("observed").Export())
}

func TestWatchRewalksMutations(t *testing.T) {
	vm := runWatch(t, `    visited.push(node.id);`)

	_, err := vm.RunString(`lastObserver.cb([
  { type: "childList", addedNodes: [{ nodeType: 3 }, { nodeType: 1, id: "new", children: [{ nodeType: 1, id: "kid" }] }] },
  { type: "attributes", target: { nodeType: 1, id: "attr" } }
]);`)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"root", "a", "b", "c", "new", "kid", "attr"}, visitedIDs(vm))
	// disconnected while processing, then observing again
	assert.EqualValues(t, 2, vm.Get("observed").Export())
}

func TestWatchStops(t *testing.T) {
	vm := runWatch(t, `    visited.push(node.id);
    if (node.id === "a") return "stop";`)

	assert.Equal(t, []interface{}{"root", "a"}, visitedIDs(vm))
	assert.EqualValues(t, 0, vm.Get("observed").Export())
}

func TestWatchInjectsScript(t *testing.T) {
	doc := mustParse(t, page)
	require.NoError(t, Watch(doc, RemoveMatching(`[aria-label="Timeline: Trending now"]`, true), "abc123"))

	out := mustParse(t, mustRender(t, doc))
	script := out.Find("script")
	require.Equal(t, 1, script.Length())
	nonce, ok := script.Attr("nonce")
	assert.True(t, ok)
	assert.Equal(t, "abc123", nonce)
	assert.Contains(t, script.Text(), `node.matches("[aria-label=\"Timeline: Trending now\"]")`)
	assert.NotContains(t, script.Text(), CallbackPlaceholder)
}

func TestWatchRejectsScriptClose(t *testing.T) {
	doc := mustParse(t, page)
	err := Watch(doc, `document.write("</SCRIPT>")`, "")
	require.Error(t, err)
	assert.Error(t, ValidateCallback("   "))
}
