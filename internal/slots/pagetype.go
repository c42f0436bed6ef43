package slots

import "strings"

// PageType is the coarse classification of the current page, derived from
// its path. Snapshots captured under one type are never restored under
// another.
type PageType string

const (
	PageImage      PageType = "image"
	PageTransition PageType = "transition"
	PageVideo      PageType = "video"
	PageOther      PageType = "other"
)

// pageRule maps a path fragment to a page type and the container-name
// fragments that mark a slot as page-matched there. The target UI publishes
// no contract for any of this; the table is heuristic and kept central so it
// can be tested against fixture paths and adjusted in one place.
type pageRule struct {
	pathFragment string
	page         PageType
	containers   []string
}

// Order matters: more specific fragments first.
var pageRules = []pageRule{
	{"/create/image", PageImage, []string{"image-upload", "reference", "ingredient"}},
	{"/edit/image", PageImage, []string{"image-upload", "reference", "canvas"}},
	{"/transition", PageTransition, []string{"frame", "start", "end"}},
	{"/create/video", PageVideo, []string{"video"}},
	{"/image", PageImage, []string{"image-upload", "reference"}},
	{"/video", PageVideo, []string{"video"}},
}

// Classify maps a page path to its type. Unmatched paths are PageOther.
func Classify(path string) PageType {
	for _, r := range pageRules {
		if strings.Contains(path, r.pathFragment) {
			return r.page
		}
	}
	return PageOther
}

// containerFragments returns the container-name fragments expected for a
// page type, nil for PageOther.
func containerFragments(pt PageType) []string {
	for _, r := range pageRules {
		if r.page == pt {
			return r.containers
		}
	}
	return nil
}
