package uitree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelectorRejectsUnsupportedSyntax(t *testing.T) {
	for _, bad := range []string{"", "div > input", "input:focus", "[unclosed"} {
		_, err := ParseSelector(bad)
		assert.Error(t, err, "selector %q should be rejected", bad)
	}
}

func TestSelectorMatches(t *testing.T) {
	attrs := func(m map[string]string) func(string) string {
		return func(name string) string { return m[name] }
	}

	testCases := []struct {
		name     string
		selector string
		tag      string
		attrMap  map[string]string
		want     bool
	}{
		{
			name:     "tag with attribute equality",
			selector: `input[type="file"]`,
			tag:      "input",
			attrMap:  map[string]string{"type": "file"},
			want:     true,
		},
		{
			name:     "tag mismatch",
			selector: `input[type="file"]`,
			tag:      "button",
			attrMap:  map[string]string{"type": "file"},
			want:     false,
		},
		{
			name:     "attribute contains",
			selector: `button[aria-label*="emove"]`,
			tag:      "button",
			attrMap:  map[string]string{"aria-label": "Remove image"},
			want:     true,
		},
		{
			name:     "attribute prefix",
			selector: `[data-testid^="add"]`,
			tag:      "div",
			attrMap:  map[string]string{"data-testid": "add-slot-2"},
			want:     true,
		},
		{
			name:     "class match among several",
			selector: ".delete-button",
			tag:      "button",
			attrMap:  map[string]string{"class": "btn delete-button primary"},
			want:     true,
		},
		{
			name:     "id match",
			selector: "#prompt",
			tag:      "textarea",
			attrMap:  map[string]string{"id": "prompt"},
			want:     true,
		},
		{
			name:     "comma alternative hits second branch",
			selector: `textarea, input[type="text"]`,
			tag:      "input",
			attrMap:  map[string]string{"type": "text"},
			want:     true,
		},
		{
			name:     "comma alternative misses all branches",
			selector: `textarea, input[type="text"]`,
			tag:      "input",
			attrMap:  map[string]string{"type": "file"},
			want:     false,
		},
		{
			name:     "bare attribute presence",
			selector: `[contenteditable="true"]`,
			tag:      "div",
			attrMap:  map[string]string{"contenteditable": "true"},
			want:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sel, err := ParseSelector(tc.selector)
			require.NoError(t, err)
			assert.Equal(t, tc.want, sel.Matches(tc.tag, attrs(tc.attrMap)))
		})
	}
}
