package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mrcoles/iron-blogger2/pkg/domain"
)

func TestSelectNew(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2015, 4, d, 12, 0, 0, 0, time.UTC) }

	candidates := []Candidate{
		{Timestamp: day(16), Title: "newest"},
		{Timestamp: day(15), Title: "middle"},
		{Timestamp: day(10), Title: "already stored"},
		{Timestamp: day(8), Title: "older"},
	}

	t.Run("empty history takes everything", func(t *testing.T) {
		assert.Len(t, SelectNew(candidates, nil), 4)
	})

	t.Run("stops at first older candidate", func(t *testing.T) {
		last := &domain.Post{Timestamp: day(10), Title: "already stored"}
		fresh := SelectNew(candidates, last)
		assert.Len(t, fresh, 2)
		assert.Equal(t, "newest", fresh[0].Title)
		assert.Equal(t, "middle", fresh[1].Title)
	})

	t.Run("stops at duplicate timestamp and title", func(t *testing.T) {
		last := &domain.Post{Timestamp: day(15), Title: "middle"}
		fresh := SelectNew(candidates, last)
		assert.Len(t, fresh, 1)
		assert.Equal(t, "newest", fresh[0].Title)
	})

	t.Run("same timestamp different title keeps going", func(t *testing.T) {
		// two posts published on the same instant are distinct posts
		last := &domain.Post{Timestamp: day(15), Title: "another post that day"}
		fresh := SelectNew(candidates, last)
		assert.Len(t, fresh, 2)
	})

	t.Run("unchanged feed yields nothing", func(t *testing.T) {
		last := &domain.Post{Timestamp: day(16), Title: "newest"}
		assert.Empty(t, SelectNew(candidates, last))
	})
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "hello world", Excerpt("<p>hello <b>world</b></p>", 100))
	assert.Equal(t, "hello...", Excerpt("<p>hello world</p>", 5))
	assert.Equal(t, "a < b", Excerpt("a &lt; b", 100))
	assert.Equal(t, "", Excerpt("", 10))
}
