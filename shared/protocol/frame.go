package protocol

import (
	"encoding/binary"
	"io"

	"github.com/rotisserie/eris"
)

/*

reliable stream framing

|--bodyLen(uint32 BE)--|-----------envelope-----------|
|----------4-----------|-----------bodyLen------------|

*/

const HeaderLen = 4

// DefaultMaxFrame bounds a single reliable message.
const DefaultMaxFrame = 1 << 20

// ErrFrameTooLarge is returned when a peer announces a body over the limit.
// The stream cannot be resynchronized after it.
var ErrFrameTooLarge = eris.New("the size of frame is larger than the limit")

// AppendFrame appends the length-prefixed body to dst.
func AppendFrame(dst, body []byte) []byte {
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	dst = append(dst, hdr[:]...)
	return append(dst, body...)
}

// WriteFrame writes one frame in a single Write call.
func WriteFrame(w io.Writer, body []byte, limit int) error {
	if limit > 0 && len(body) > limit {
		return eris.Wrapf(ErrFrameTooLarge, "write %d bytes", len(body))
	}
	buf := AppendFrame(make([]byte, 0, HeaderLen+len(body)), body)
	if _, err := w.Write(buf); err != nil {
		return eris.Wrap(err, "write frame")
	}
	return nil
}

// FrameReader reads length-prefixed frames. A read that fails with a timeout
// keeps the partial header or body, so the next Next call resumes exactly
// where the stream stopped.
type FrameReader struct {
	r     io.Reader
	limit int

	hdr  [HeaderLen]byte
	hn   int
	body []byte
	bn   int
}

func NewFrameReader(r io.Reader, limit int) *FrameReader {
	if limit <= 0 {
		limit = DefaultMaxFrame
	}
	return &FrameReader{r: r, limit: limit}
}

// Next returns the next complete frame body. The returned slice is owned by
// the caller.
func (fr *FrameReader) Next() ([]byte, error) {
	for fr.hn < HeaderLen {
		n, err := fr.r.Read(fr.hdr[fr.hn:])
		fr.hn += n
		if err != nil {
			if fr.hn == HeaderLen && err == io.EOF {
				break
			}
			if err == io.EOF && fr.hn > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	if fr.body == nil {
		length := binary.BigEndian.Uint32(fr.hdr[:])
		if int64(length) > int64(fr.limit) {
			return nil, eris.Wrapf(ErrFrameTooLarge, "peer announced %d bytes", length)
		}
		fr.body = make([]byte, length)
		fr.bn = 0
	}

	for fr.bn < len(fr.body) {
		n, err := fr.r.Read(fr.body[fr.bn:])
		fr.bn += n
		if err != nil {
			if fr.bn == len(fr.body) && err == io.EOF {
				break
			}
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	out := fr.body
	fr.body = nil
	fr.hn = 0
	fr.bn = 0
	return out, nil
}
