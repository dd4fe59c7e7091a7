package imf

import "github.com/rs/zerolog"

// discardLogger returns a logger that drops every event, for tests that
// only care about return values.
func discardLogger() zerolog.Logger { return zerolog.Nop() }

// fakeElement is a minimal, hand-built Element used across this
// package's tests instead of parsing real XML.
type fakeElement struct {
	local    string
	text     string
	attrs    map[string]string
	children []*fakeElement
}

func (e *fakeElement) LocalName() string { return e.local }
func (e *fakeElement) Text() string      { return e.text }

func (e *fakeElement) Attr(name string) (string, bool) {
	if e.attrs == nil {
		return "", false
	}
	v, ok := e.attrs[name]
	return v, ok
}

func (e *fakeElement) Children() []Element {
	out := make([]Element, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out
}

func el(local, text string, children ...*fakeElement) *fakeElement {
	return &fakeElement{local: local, text: text, children: children}
}

func rationalEl(local, num, den string) *fakeElement {
	return el(local, num+" "+den)
}

var _ Element = (*fakeElement)(nil)
