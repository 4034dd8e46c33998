// Package display holds the single text region every operation writes to.
//
// Each trigger opens a new generation with Begin. An operation settles
// with the generation it was given; the write lands only if no newer
// trigger has started since, so the latest trigger always owns the text
// regardless of which network call finishes last.
package display

import "sync"

// Generation identifies the trigger that currently owns the display.
type Generation uint64

// Display is safe for concurrent use.
type Display struct {
	mu   sync.Mutex
	text string
	gen  Generation
	seq  uint64

	// notifyMu orders onChange calls; delivered is the seq of the last write
	// passed to onChange.
	notifyMu  sync.Mutex
	delivered uint64
	onChange  func(string)
}

// New returns an empty display. onChange, when non-nil, is called with
// the new text after accepted writes, outside the state lock. Calls arrive
// in write order; a write that was overtaken by a newer one before its
// notification ran is skipped.
func New(onChange func(string)) *Display {
	return &Display{onChange: onChange}
}

// Begin starts a new generation and shows text immediately.
func (d *Display) Begin(text string) Generation {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	seq := d.write(text)
	d.mu.Unlock()

	d.notify(seq, text)
	return gen
}

// Settle writes text if gen is still the latest generation and reports
// whether it did.
func (d *Display) Settle(gen Generation, text string) bool {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return false
	}
	seq := d.write(text)
	d.mu.Unlock()

	d.notify(seq, text)
	return true
}

// Text returns the current contents.
func (d *Display) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// write must be called with mu held.
func (d *Display) write(text string) uint64 {
	d.text = text
	d.seq++
	return d.seq
}

func (d *Display) notify(seq uint64, text string) {
	if d.onChange == nil {
		return
	}
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	if seq <= d.delivered {
		return
	}
	d.delivered = seq
	d.onChange(text)
}
