// Package roster reads and writes the bloggers file: a YAML mapping from
// participant name to their start date and blog links. The same format the
// classic iron-blogger setup used, so existing rosters import unchanged.
package roster

import (
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Member is one roster entry: a participant and their blogs
type Member struct {
	Name      string
	StartDate time.Time
	Blogs     []BlogLink
}

// BlogLink identifies a single blog of a member
type BlogLink struct {
	Title   string
	PageURL string
	FeedURL string
}

// entry matches the on-disk YAML shape: start is a YYYY-MM-DD date, links are
// [title, page_url, feed_url] triples
type entry struct {
	Start string     `yaml:"start"`
	Links [][]string `yaml:"links"`
}

// Parse reads a roster document. Start dates are interpreted as midnight UTC.
func Parse(r io.Reader) ([]Member, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var doc map[string]entry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	members := make([]Member, 0, len(doc))
	for name, e := range doc {
		start, err := time.ParseInLocation("2006-01-02", e.Start, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("member %q: bad start date %q: %w", name, e.Start, err)
		}

		member := Member{Name: name, StartDate: start}
		for _, link := range e.Links {
			if len(link) != 3 {
				return nil, fmt.Errorf("member %q: link needs [title, page_url, feed_url], got %d elements", name, len(link))
			}
			member.Blogs = append(member.Blogs, BlogLink{Title: link[0], PageURL: link[1], FeedURL: link[2]})
		}
		members = append(members, member)
	}

	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

// Export writes members in the same YAML format Parse reads, the inverse of an
// import.
func Export(w io.Writer, members []Member) error {
	doc := make(map[string]entry, len(members))
	for _, m := range members {
		e := entry{Start: m.StartDate.UTC().Format("2006-01-02")}
		for _, b := range m.Blogs {
			e.Links = append(e.Links, []string{b.Title, b.PageURL, b.FeedURL})
		}
		doc[m.Name] = e
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	return nil
}
