package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_ReplaceAndCurrent(t *testing.T) {
	h := NewHolder()
	assert.Nil(t, h.Current())
	assert.Equal(t, uint64(0), h.Generation())

	first := New("a.mp3", "one", Details{})
	second := New("b.pdf", "two", Details{})

	assert.Equal(t, uint64(1), h.Replace(first))
	assert.Same(t, first, h.Current())
	assert.Equal(t, uint64(2), h.Replace(second))
	assert.Same(t, second, h.Current())
	assert.Equal(t, "one", first.SummaryText)
}

func TestHolder_Listeners(t *testing.T) {
	h := NewHolder()
	var order []string
	var gens []uint64

	h.OnReplace(func(_ *Session, gen uint64) {
		order = append(order, "first")
		gens = append(gens, gen)
	})
	remove := h.OnReplace(func(*Session, uint64) { order = append(order, "second") })

	h.Replace(New("a.mp3", "", Details{}))
	remove()
	remove()
	h.Replace(New("b.mp3", "", Details{}))

	assert.Equal(t, []string{"first", "second", "first"}, order)
	assert.Equal(t, []uint64{1, 2}, gens)
}

func TestHolder_ConcurrentReaders(t *testing.T) {
	h := NewHolder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Replace(New("talk.mp3", "summary", Details{}))
		}()
		go func() {
			defer wg.Done()
			if s := h.Current(); s != nil {
				assert.Equal(t, "summary", s.SummaryText)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(20), h.Generation())
}
