package dashboard

import "strings"

// DefaultImageBaseURL hosts the exposure thumbnails and full-size frames.
const DefaultImageBaseURL = "https://raw.githubusercontent.com/iDataVisualizationLab/jwst-data/main/img"

// ImageRef locates the preview images for one exposure.
type ImageRef struct {
	Filename  string `json:"filename"`
	Thumbnail string `json:"thumbnail"`
	Full      string `json:"full"`
}

// ImageResolver maps exposure filenames to image URLs. Filenames are used
// verbatim.
type ImageResolver struct {
	base string
}

func NewImageResolver(base string) ImageResolver {
	if base == "" {
		base = DefaultImageBaseURL
	}
	return ImageResolver{base: strings.TrimRight(base, "/")}
}

func (r ImageResolver) Resolve(filename string) (ImageRef, bool) {
	if filename == "" {
		return ImageRef{}, false
	}
	if r.base == "" {
		r = NewImageResolver("")
	}
	return ImageRef{
		Filename:  filename,
		Thumbnail: r.base + "/thumbnails/" + filename,
		Full:      r.base + "/full-size/" + filename,
	}, true
}
