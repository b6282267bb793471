package services

import "github.com/gosimple/slug"

// Slugger turns display text into a URL-safe identifier.
type Slugger interface {
	Slug(text string) string
}

// TextSlugger lowercases, transliterates and hyphenates text.
type TextSlugger struct{}

func (TextSlugger) Slug(text string) string {
	return slug.Make(text)
}
