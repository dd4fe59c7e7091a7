package imf

import (
	"context"
	"io"

	"github.com/mebox/imfdemux/demux"
)

// fakeChildDemuxer emits a fixed number of equal-duration packets on one
// stream, then io.EOF.
type fakeChildDemuxer struct {
	stream      demux.Stream
	packetCount int
	duration    int64

	emitted  int
	seekedTo int64
	closed   bool
}

func newFakeChildDemuxer(timeBaseNum, timeBaseDen int64, packetCount int, duration int64) *fakeChildDemuxer {
	return &fakeChildDemuxer{
		stream:      demux.Stream{TimeBaseNum: timeBaseNum, TimeBaseDen: timeBaseDen},
		packetCount: packetCount,
		duration:    duration,
	}
}

func (f *fakeChildDemuxer) Streams() []demux.Stream { return []demux.Stream{f.stream} }

func (f *fakeChildDemuxer) SeekMicroseconds(_ context.Context, us int64) error {
	f.seekedTo = us
	return nil
}

func (f *fakeChildDemuxer) ReadPacket(_ context.Context) (demux.Packet, error) {
	if f.emitted >= f.packetCount {
		return demux.Packet{}, io.EOF
	}
	dts := int64(f.emitted) * f.duration
	f.emitted++
	return demux.Packet{DTS: dts, PTS: dts, Duration: f.duration}, nil
}

func (f *fakeChildDemuxer) Close() error {
	f.closed = true
	return nil
}

var _ demux.ChildDemuxer = (*fakeChildDemuxer)(nil)

// fakeOpener constructs fakeChildDemuxers from a URI-keyed factory table
// and counts how many times each URI was opened.
type fakeOpener struct {
	factories map[string]func() *fakeChildDemuxer
	openCount map[string]int
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{factories: map[string]func() *fakeChildDemuxer{}, openCount: map[string]int{}}
}

func (o *fakeOpener) register(uri string, factory func() *fakeChildDemuxer) {
	o.factories[uri] = factory
}

func (o *fakeOpener) Open(_ context.Context, absoluteURI string) (demux.ChildDemuxer, error) {
	factory, ok := o.factories[absoluteURI]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	o.openCount[absoluteURI]++
	return factory(), nil
}

var _ demux.Opener = (*fakeOpener)(nil)

// fakeByteStream and fakeParser let demuxer_test.go drive imf.Open without
// real XML: documents are pre-built fakeElement trees keyed by URL. The
// "byte stream" returned is a tagged placeholder the fake parser reads
// back to recover which document it stands for.
type fakeByteStream struct {
	docs map[string]*fakeElement
}

type taggedReader struct{ url string }

func (taggedReader) Read(p []byte) (int, error) { return 0, io.EOF }
func (taggedReader) Close() error               { return nil }

func (b fakeByteStream) OpenByteStream(_ context.Context, absoluteURI string) (io.ReadCloser, error) {
	if _, ok := b.docs[absoluteURI]; !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return taggedReader{url: absoluteURI}, nil
}

func fakeParserFor(docs map[string]*fakeElement) DocumentParser {
	return func(r io.Reader) (Element, error) {
		tr, ok := r.(taggedReader)
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		doc, ok := docs[tr.url]
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		return doc, nil
	}
}
