package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hallgrim/uplift/internal/inject"
)

func TestSelectorFromFlags(t *testing.T) {
	testCases := []struct {
		name  string
		index int
		id    string
		want  inject.Selector
	}{
		{"defaults to auto", -1, "", inject.Auto()},
		{"index targeting", 2, "", inject.ByIndex(2)},
		{"identity targeting", -1, "image-upload-slot#1", inject.ByStableID("image-upload-slot#1")},
		{"identity wins over index", 0, "image-upload-slot#1", inject.ByStableID("image-upload-slot#1")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, selectorFromFlags(tc.index, tc.id))
		})
	}
}
