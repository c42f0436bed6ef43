package uitree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePage = `
<html><body>
  <div id="composer" class="panel">
    <textarea id="prompt" placeholder="Describe your image"></textarea>
    <div class="image-upload-slot">
      <input type="file" accept="image/*">
      <img src="">
    </div>
    <div class="video-upload" style="display:none">
      <input type="file" accept="video/mp4">
    </div>
  </div>
</body></html>`

func mustParse(t *testing.T, src, path string) *HTMLTree {
	t.Helper()
	tree, err := ParseHTMLTree(src, path)
	require.NoError(t, err)
	return tree
}

func TestHTMLTreeEnumerate(t *testing.T) {
	tree := mustParse(t, fixturePage, "/create/image")
	ctx := context.Background()

	inputs, err := tree.Enumerate(ctx, `input[type="file"]`)
	require.NoError(t, err)
	assert.Len(t, inputs, 2)

	areas, err := tree.Enumerate(ctx, "textarea")
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.Equal(t, "Describe your image", areas[0].Attr("placeholder"))
}

func TestHTMLTreeKeysAreStableAcrossEnumerations(t *testing.T) {
	tree := mustParse(t, fixturePage, "/create/image")
	ctx := context.Background()

	first, err := tree.Enumerate(ctx, `input[type="file"]`)
	require.NoError(t, err)
	second, err := tree.Enumerate(ctx, `input[type="file"]`)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Key(), second[i].Key())
	}
}

func TestHTMLTreeVisibility(t *testing.T) {
	tree := mustParse(t, fixturePage, "/create/image")
	ctx := context.Background()

	inputs, err := tree.Enumerate(ctx, `input[type="file"]`)
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	// The image slot input is visible, the video one hides behind
	// display:none on its container.
	v0, err := inputs[0].Visible(ctx)
	require.NoError(t, err)
	assert.True(t, v0)

	v1, err := inputs[1].Visible(ctx)
	require.NoError(t, err)
	assert.False(t, v1)
}

func TestHTMLTreeAncestorHintsAndParent(t *testing.T) {
	tree := mustParse(t, fixturePage, "/create/image")

	inputs, err := tree.Enumerate(context.Background(), `input[accept="image/*"]`)
	require.NoError(t, err)
	require.Len(t, inputs, 1)

	hints := inputs[0].AncestorHints()
	assert.Contains(t, hints, "image-upload-slot")
	assert.Contains(t, hints, "composer")

	parent := inputs[0].Parent()
	require.NotNil(t, parent)
	assert.Equal(t, "image-upload-slot", parent.Attr("class"))

	imgs := parent.Query("img")
	require.Len(t, imgs, 1)
}

func TestHTMLTreeValueAndFiles(t *testing.T) {
	tree := mustParse(t, fixturePage, "/create/image")
	ctx := context.Background()

	inputs, err := tree.Enumerate(ctx, `input[accept="image/*"]`)
	require.NoError(t, err)
	in := inputs[0]

	v, err := in.Value(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, in.SetFiles(ctx, []FilePayload{{Filename: "cat.png", MIMEType: "image/png", Data: []byte{1}}}))
	v, err = in.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cat.png", v)

	// Blanking the value also forgets the files, mirroring input.value="".
	require.NoError(t, in.SetValue(ctx, ""))
	v, err = in.Value(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestHTMLTreeInteractionLogOrder(t *testing.T) {
	tree := mustParse(t, fixturePage, "/create/image")
	ctx := context.Background()

	inputs, err := tree.Enumerate(ctx, `input[accept="image/*"]`)
	require.NoError(t, err)
	in := inputs[0]

	require.NoError(t, in.Hover(ctx))
	require.NoError(t, in.SetFiles(ctx, []FilePayload{{Filename: "a.jpg"}}))
	require.NoError(t, in.Dispatch(ctx, EventChange))

	log := tree.Log()
	require.Len(t, log, 3)
	assert.Contains(t, log[0], "Hover")
	assert.Contains(t, log[1], "SetFiles")
	assert.Contains(t, log[2], "Dispatch")
}

func TestHTMLTreeObserveAndBump(t *testing.T) {
	tree := mustParse(t, fixturePage, "/create/image")

	ch, stop, err := tree.Observe(context.Background())
	require.NoError(t, err)

	tree.Bump("childList")
	m := <-ch
	assert.Equal(t, "childList", m.Kind)

	stop()
	_, open := <-ch
	assert.False(t, open)
}

func TestHTMLTreeHooks(t *testing.T) {
	tree := mustParse(t, fixturePage, "/create/image")
	ctx := context.Background()

	var clicked []NodeKey
	tree.OnClick = func(el Element) { clicked = append(clicked, el.Key()) }

	areas, err := tree.Enumerate(ctx, "textarea")
	require.NoError(t, err)
	require.NoError(t, areas[0].Click(ctx))
	assert.Equal(t, []NodeKey{areas[0].Key()}, clicked)
}
