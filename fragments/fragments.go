// Package fragments splits a byte stream into page-sized fragments for transmission
// through code statements, and reassembles them on the receiving side.
//
// A statement can only carry a bounded amount of data, so a stream written to a remote
// file is cut into pages. Each page travels base64 encoded inside one statement.
//
// # Fragment Sequence
//
//	┌──────────────────────────────────────────────┐
//	│  Seq 0   Start   create the destination file │
//	├──────────────────────────────────────────────┤
//	│  Seq 1           append                      │
//	├──────────────────────────────────────────────┤
//	│  ...                                         │
//	├──────────────────────────────────────────────┤
//	│  Seq N   End     append, stream closed       │
//	└──────────────────────────────────────────────┘
//
// A stream of zero bytes is a single fragment that is both Start and End and carries no
// data. When the stream length is an exact multiple of the page size, the last full page
// is not flagged End; closing does not add an empty trailer.
//
// # Usage
//
// To fragment a stream as it is produced:
//
//	f := fragments.NewFragmenter(pageSize)
//	frags, rest := f.Split(buf, false) // full pages only
//	frags, _ = f.Split(rest, true)     // flush on close
//
// To reassemble:
//
//	a := fragments.NewAssembler()
//	for _, frag := range received {
//	    if err := a.Add(frag); err != nil {
//	        return err
//	    }
//	}
//	data := a.Bytes()
package fragments

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// DefaultPageSize is the default maximum number of decoded bytes per fragment.
const DefaultPageSize = 100 * 1024

// DefaultMaxAssembledSize bounds how much an Assembler accepts.
const DefaultMaxAssembledSize = 1 << 30

var (
	// ErrInvalidFragment is returned when a fragment is malformed.
	ErrInvalidFragment = errors.New("invalid fragment")
	// ErrOutOfOrder is returned when a fragment does not follow the previous one.
	ErrOutOfOrder = errors.New("fragment out of order")
	// ErrDuplicateFragment is returned when a fragment is received twice.
	ErrDuplicateFragment = errors.New("duplicate fragment")
)

// Fragment is one page of a stream.
type Fragment struct {
	Seq   uint64
	Start bool
	End   bool
	Data  []byte
}

// Encode returns the fragment payload in standard base64.
func (f *Fragment) Encode() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// Decode rebuilds a fragment from its sequence number, flags and base64 payload.
func Decode(seq uint64, start, end bool, payload string) (*Fragment, error) {
	if start != (seq == 0) {
		return nil, fmt.Errorf("%w: start flag on sequence %d", ErrInvalidFragment, seq)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFragment, err)
	}
	return &Fragment{Seq: seq, Start: start, End: end, Data: data}, nil
}

// Fragmenter cuts a stream into pages. It keeps the sequence counter across calls, so
// one Fragmenter serves exactly one stream.
type Fragmenter struct {
	pageSize int
	seq      uint64
	ended    bool
}

// NewFragmenter creates a Fragmenter. A non-positive pageSize selects DefaultPageSize.
func NewFragmenter(pageSize int) *Fragmenter {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Fragmenter{pageSize: pageSize}
}

// PageSize returns the maximum number of bytes per fragment.
func (f *Fragmenter) PageSize() int {
	return f.pageSize
}

// Emitted returns the number of fragments produced so far.
func (f *Fragmenter) Emitted() uint64 {
	return f.seq
}

// Split cuts every full page off the front of data and returns them with the
// remaining bytes. With final set, the remainder is emitted too and the last fragment
// is flagged End; an empty fragment is produced only if nothing was emitted before.
// The returned fragments alias data.
func (f *Fragmenter) Split(data []byte, final bool) (frags []*Fragment, rest []byte) {
	if f.ended {
		return nil, data
	}

	for len(data) >= f.pageSize {
		frags = append(frags, f.next(data[:f.pageSize]))
		data = data[f.pageSize:]
	}

	if !final {
		return frags, data
	}

	f.ended = true
	if len(data) > 0 || f.seq == 0 {
		frags = append(frags, f.next(data))
	}
	if len(frags) > 0 {
		frags[len(frags)-1].End = true
	}
	return frags, nil
}

func (f *Fragmenter) next(data []byte) *Fragment {
	frag := &Fragment{
		Seq:   f.seq,
		Start: f.seq == 0,
		Data:  data,
	}
	f.seq++
	return frag
}

// Assembler rebuilds a stream from fragments received in order. A Start fragment
// resets the content, matching a destination file being recreated.
type Assembler struct {
	data    []byte
	next    uint64
	started bool
	ended   bool
	maxSize int
}

// NewAssembler creates an Assembler with DefaultMaxAssembledSize.
func NewAssembler() *Assembler {
	return NewAssemblerWithLimit(DefaultMaxAssembledSize)
}

// NewAssemblerWithLimit creates an Assembler that rejects streams above maxSize bytes.
func NewAssemblerWithLimit(maxSize int) *Assembler {
	return &Assembler{maxSize: maxSize}
}

// Add appends a fragment.
func (a *Assembler) Add(f *Fragment) error {
	if f.Start {
		if f.Seq != 0 {
			return fmt.Errorf("%w: start flag on sequence %d", ErrInvalidFragment, f.Seq)
		}
		a.data = a.data[:0]
		a.next = 0
		a.started = true
		a.ended = false
	}

	switch {
	case !a.started:
		return fmt.Errorf("%w: sequence %d before start", ErrOutOfOrder, f.Seq)
	case f.Seq < a.next:
		return fmt.Errorf("%w: sequence %d", ErrDuplicateFragment, f.Seq)
	case f.Seq > a.next:
		return fmt.Errorf("%w: got sequence %d, want %d", ErrOutOfOrder, f.Seq, a.next)
	case a.ended:
		return fmt.Errorf("%w: sequence %d after end", ErrOutOfOrder, f.Seq)
	}

	if len(a.data)+len(f.Data) > a.maxSize {
		return fmt.Errorf("assembled stream too large: %d > %d", len(a.data)+len(f.Data), a.maxSize)
	}

	a.data = append(a.data, f.Data...)
	a.next++
	a.ended = f.End
	return nil
}

// Complete reports whether the End fragment has been added.
func (a *Assembler) Complete() bool {
	return a.ended
}

// Bytes returns the stream assembled so far.
func (a *Assembler) Bytes() []byte {
	return a.data
}
