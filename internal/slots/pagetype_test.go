package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		path string
		want PageType
	}{
		{"/create/image", PageImage},
		{"/create/image?ref=home", PageImage},
		{"/edit/image/abc123", PageImage},
		{"/transition", PageTransition},
		{"/tools/transition/new", PageTransition},
		{"/create/video", PageVideo},
		{"/video/gallery", PageVideo},
		{"/image/detail", PageImage},
		{"/", PageOther},
		{"/account/settings", PageOther},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Classify(tc.path), "path %q", tc.path)
	}
}

func TestContainerFragments(t *testing.T) {
	assert.Contains(t, containerFragments(PageImage), "image-upload")
	assert.Contains(t, containerFragments(PageTransition), "frame")
	assert.Nil(t, containerFragments(PageOther))
}
