package roster

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	doc := `
alice:
  start: "2015-04-01"
  links:
    - [Alice's Blog, "http://alice.example.com/", "http://alice.example.com/feed"]
bob:
  start: "2015-04-08"
  links:
    - [Bob Writes, "http://bob.example.com/", "http://bob.example.com/atom.xml"]
    - [Bob Rants, "http://rants.example.com/", "http://rants.example.com/rss"]
`
	members, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, "alice", members[0].Name)
	assert.Equal(t, time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC), members[0].StartDate)
	require.Len(t, members[0].Blogs, 1)
	assert.Equal(t, "Alice's Blog", members[0].Blogs[0].Title)
	assert.Equal(t, "http://alice.example.com/feed", members[0].Blogs[0].FeedURL)

	assert.Equal(t, "bob", members[1].Name)
	require.Len(t, members[1].Blogs, 2)
	assert.Equal(t, "http://rants.example.com/", members[1].Blogs[1].PageURL)
}

func TestParse_BadStartDate(t *testing.T) {
	doc := `
alice:
  start: "April 1st"
  links: []
`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad start date")
}

func TestParse_BadLink(t *testing.T) {
	doc := `
alice:
  start: "2015-04-01"
  links:
    - [only-a-title]
`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link needs")
}

func TestParse_NotYAML(t *testing.T) {
	_, err := Parse(strings.NewReader("{not: [valid"))
	require.Error(t, err)
}

func TestExport_RoundTrip(t *testing.T) {
	members := []Member{
		{
			Name:      "alice",
			StartDate: time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC),
			Blogs:     []BlogLink{{Title: "Alice's Blog", PageURL: "http://alice.example.com/", FeedURL: "http://alice.example.com/feed"}},
		},
		{
			Name:      "bob",
			StartDate: time.Date(2015, 4, 8, 0, 0, 0, 0, time.UTC),
			Blogs: []BlogLink{
				{Title: "Bob Writes", PageURL: "http://bob.example.com/", FeedURL: "http://bob.example.com/atom.xml"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, members))

	got, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, members, got)
}
