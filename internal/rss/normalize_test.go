package rss

import (
	"testing"
	"time"

	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "empty", in: "", expected: ""},
		{name: "plain text", in: "  hello world ", expected: "hello world"},
		{name: "simple tags", in: "<p>hello <b>world</b></p>", expected: "hello world"},
		{name: "tag with attributes", in: `<a href="http://x">link</a> text`, expected: "link text"},
		{name: "tag across lines", in: "<img\nsrc=\"a.png\"/>caption", expected: "caption"},
		{name: "lone bracket kept", in: "a < b", expected: "a < b"},
		{name: "whitespace left by tags", in: "<br/>  body  <br/>", expected: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripTags(tt.in))
		})
	}
}

func TestEntryDate(t *testing.T) {
	defer func(loc *time.Location) { time.Local = loc }(time.Local)
	time.Local = time.FixedZone("CET", 3600)

	ts := time.Date(2016, 6, 1, 9, 5, 0, 0, time.UTC)
	e := NewEntry(model.RawItem{Title: "t", PublishedAt: &ts})
	assert.Equal(t, "01.06.2016, 10:05", e.Date())

	// Entries from feeds in other zones render in the same local zone.
	other := time.Date(2016, 6, 1, 4, 5, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "01.06.2016, 10:05", NewEntry(model.RawItem{Title: "t", PublishedAt: &other}).Date())

	assert.Equal(t, "", NewEntry(model.RawItem{Title: "t"}).Date())
}
