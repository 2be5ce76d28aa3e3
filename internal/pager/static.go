package pager

import (
	"context"
	"strconv"
	"sync"

	"github.com/G-Research/importscheduler/internal/representation"
)

// StaticPager serves fixed pages from memory. Pages are 1-based; pages[0] is page 1.
type StaticPager struct {
	mu       sync.Mutex
	pages    map[string][][]representation.Raw
	requests []int
}

func NewStaticPager() *StaticPager {
	return &StaticPager{pages: map[string][][]representation.Raw{}}
}

// Add sets the pages of collection for sourceRef.
func (p *StaticPager) Add(sourceRef string, collection string, pages ...[]representation.Raw) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[sourceRef+"/"+collection] = pages
}

func (p *StaticPager) EachPage(ctx context.Context, collection string, sourceRef string, options Options, fn func(Page) error) error {
	first := 1
	if s, ok := options["page"]; ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			first = n
		}
	}
	p.mu.Lock()
	pages := p.pages[sourceRef+"/"+collection]
	p.mu.Unlock()
	for number := first; number <= len(pages); number++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.mu.Lock()
		p.requests = append(p.requests, number)
		p.mu.Unlock()
		if err := fn(Page{Number: number, Objects: pages[number-1]}); err != nil {
			return err
		}
	}
	return nil
}

// Requested returns the page numbers served so far.
func (p *StaticPager) Requested() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.requests...)
}
