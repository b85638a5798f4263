package githubapi

import (
	"context"
	"iter"
)

// PageFunc fetches one page. It returns the items and the next page number,
// or 0 when there are no more pages.
type PageFunc[T any] func(ctx context.Context, page int) ([]T, int, error)

// Paginator lazily walks a paged listing, consulting a Pacer before every
// page after the first. It is restartable through Reset.
type Paginator[T any] struct {
	fetch    PageFunc[T]
	pacer    *Pacer
	maxPages int

	next    int
	fetched int
	done    bool
}

// PaginatorOption customizes a Paginator.
type PaginatorOption func(*paginatorOptions)

type paginatorOptions struct {
	maxPages int
}

// WithMaxPages stops iteration after n pages. Zero means unbounded.
func WithMaxPages(n int) PaginatorOption {
	return func(o *paginatorOptions) { o.maxPages = n }
}

// NewPaginator creates a paginator starting at page 1.
func NewPaginator[T any](fetch PageFunc[T], pacer *Pacer, opts ...PaginatorOption) *Paginator[T] {
	options := paginatorOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return &Paginator[T]{
		fetch:    fetch,
		pacer:    pacer,
		maxPages: options.maxPages,
		next:     1,
	}
}

// Next fetches the next page. ok is false once the listing is exhausted.
func (p *Paginator[T]) Next(ctx context.Context) (items []T, ok bool, err error) {
	if p.done {
		return nil, false, nil
	}
	if p.maxPages > 0 && p.fetched >= p.maxPages {
		p.done = true
		return nil, false, nil
	}
	if p.fetched > 0 {
		if err := p.pacer.Wait(ctx); err != nil {
			return nil, false, err
		}
	}

	items, next, err := p.fetch(ctx, p.next)
	if err != nil {
		return nil, false, err
	}
	p.fetched++
	if next <= 0 || next == p.next {
		p.done = true
	} else {
		p.next = next
	}
	return items, true, nil
}

// Reset restarts iteration from the first page.
func (p *Paginator[T]) Reset() {
	p.next = 1
	p.fetched = 0
	p.done = false
}

// Pages yields pages until exhaustion or the first error.
func (p *Paginator[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		for {
			items, ok, err := p.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(items, nil) {
				return
			}
		}
	}
}

// All collects every remaining item. Items gathered before an error are returned with it.
func (p *Paginator[T]) All(ctx context.Context) ([]T, error) {
	var all []T
	for items, err := range p.Pages(ctx) {
		if err != nil {
			return all, err
		}
		all = append(all, items...)
	}
	return all, nil
}
