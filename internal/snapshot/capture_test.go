package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallgrim/uplift/internal/slots"
	"github.com/hallgrim/uplift/internal/uitree"
)

const capturePage = `
<html><body>
  <textarea placeholder="Describe your image"></textarea>
  <input type="text" name="seed" value="42">
  <div contenteditable="true" aria-label="Negative prompt">blurry, low quality</div>
  <button data-testid="model-picker">Photon-2</button>
  <button aria-label="Aspect ratio">16:9</button>
  <div class="image-upload-slot has-image">
    <input type="file" accept="image/*">
    <img src="https://cdn.example.com/a.png">
  </div>
  <div class="reference-box">
    <input type="file" accept="image/*">
    <img src="">
  </div>
</body></html>`

func newCapturer(t *testing.T, page, path string) (*Capturer, *uitree.HTMLTree) {
	t.Helper()
	tree, err := uitree.ParseHTMLTree(page, path)
	require.NoError(t, err)
	return NewCapturer(tree, slots.NewAssignor(nil), nil), tree
}

func TestCaptureRecordsPageState(t *testing.T) {
	c, tree := newCapturer(t, capturePage, "/create/image")
	ctx := context.Background()

	areas, err := tree.Enumerate(ctx, "textarea")
	require.NoError(t, err)
	require.Len(t, areas, 1)
	require.NoError(t, areas[0].SetValue(ctx, "a red fox at dawn"))

	snap, err := c.Capture(ctx)
	require.NoError(t, err)

	assert.Equal(t, "/create/image", snap.Path)
	assert.Equal(t, map[string]string{
		"Describe your image": "a red fox at dawn",
		"seed":                "42",
		"Negative prompt":     "blurry, low quality",
	}, snap.InputsByKey)
	assert.Equal(t, "Photon-2", snap.SelectedModel)
	assert.Equal(t, "16:9", snap.SelectedAspectRatio)

	// Only the occupied slot is recorded, with its identity at capture time.
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "https://cdn.example.com/a.png", snap.Images[0].URL)
	assert.Equal(t, 0, snap.Images[0].SlotIndex)
	assert.Equal(t, "image-upload-slot#0", snap.Images[0].ContainerID)

	assert.False(t, snap.Empty())
}

func TestCaptureSkipsBlankFields(t *testing.T) {
	page := `
<html><body>
  <textarea placeholder="Describe your image">   </textarea>
  <input type="text" name="seed" value="">
</body></html>`
	c, _ := newCapturer(t, page, "/create/image")

	snap, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.InputsByKey)
	assert.True(t, snap.Empty())
}

func TestCaptureUsesBackgroundFill(t *testing.T) {
	page := `
<html><body>
  <div class="image-upload-slot has-image" style="background-image: url('https://cdn.example.com/bg.webp')">
    <input type="file" accept="image/*">
  </div>
</body></html>`
	c, _ := newCapturer(t, page, "/create/image")

	snap, err := c.Capture(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "https://cdn.example.com/bg.webp", snap.Images[0].URL)
}

func TestCaptureSkipsOccupiedSlotWithoutURL(t *testing.T) {
	// Occupied by marker class, but nothing resolvable to re-fetch later.
	page := `
<html><body>
  <div class="image-upload-slot has-image">
    <input type="file" accept="image/*">
  </div>
</body></html>`
	c, _ := newCapturer(t, page, "/create/image")

	snap, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Images)
}

func TestFieldKeyPrecedence(t *testing.T) {
	page := `
<html><body>
  <input type="text" aria-label="Label" placeholder="Place" name="nm" id="idx">
  <input type="text" placeholder="Place" name="nm">
  <input type="text" name="nm">
  <input type="text" id="only-id">
  <input type="text">
</body></html>`
	tree, err := uitree.ParseHTMLTree(page, "/create/image")
	require.NoError(t, err)

	fields, err := tree.Enumerate(context.Background(), `input[type="text"]`)
	require.NoError(t, err)
	require.Len(t, fields, 5)

	assert.Equal(t, "Label", FieldKey(fields[0], 0))
	assert.Equal(t, "Place", FieldKey(fields[1], 1))
	assert.Equal(t, "nm", FieldKey(fields[2], 2))
	assert.Equal(t, "only-id", FieldKey(fields[3], 3))
	assert.Equal(t, "field_4", FieldKey(fields[4], 4))
}
