package fetch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeedsRenderEmptyBody(t *testing.T) {
	t.Parallel()

	require.True(t, NeedsRender(nil))
}

func TestNeedsRenderSPAMarkers(t *testing.T) {
	t.Parallel()

	require.True(t, NeedsRender([]byte(`<div id="__next"></div>`)))
	require.True(t, NeedsRender([]byte(`<div id="root"></div>`)))
}

func TestNeedsRenderScriptShell(t *testing.T) {
	t.Parallel()

	require.True(t, NeedsRender([]byte(`<html><script>var a=1;</script><p>t</p></html>`)))
}

func TestNeedsRenderFalseForContentPage(t *testing.T) {
	t.Parallel()

	body := "<html><body>" + strings.Repeat("<div class=\"game\">snake</div>", 200) + "</body></html>"
	require.False(t, NeedsRender([]byte(body)))
}
