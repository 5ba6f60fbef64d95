package blob

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"

	"github.com/lasmarois/notesbridge/internal/noteserr"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Unwrap decompresses a gzip-wrapped payload. Records stored uncompressed
// (no gzip magic) pass through unchanged, per §4.2 Step 1. A streaming
// gzip.Reader is tried first; if it errors partway (Apple's writer has
// been observed to omit a well-formed trailer on some records), falls
// back to a one-shot flate inflate over the same deflate window. Shared
// by the CRDT table parser, since mergeable-data blobs use the same
// wrapping convention (§4.3).
func Unwrap(data []byte) ([]byte, error) {
	if len(data) < 2 || !bytes.Equal(data[:2], gzipMagic) {
		return data, nil
	}

	if out, err := streamingGunzip(data); err == nil {
		return out, nil
	}

	out, err := fallbackInflate(data)
	if err != nil {
		return nil, noteserr.DecodeFailed("decompression", err)
	}
	return out, nil
}

func streamingGunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// fallbackInflate manually walks the gzip header (10-byte fixed header
// plus optional FEXTRA/FNAME/FCOMMENT/FHCRC fields) to find where the raw
// deflate stream starts, then inflates it directly with compress/flate,
// ignoring the 8-byte trailer (CRC32 + ISIZE) entirely.
func fallbackInflate(data []byte) ([]byte, error) {
	const fixedHeaderLen = 10
	if len(data) < fixedHeaderLen {
		return nil, io.ErrUnexpectedEOF
	}

	flg := data[3]
	pos := fixedHeaderLen

	const (
		fExtra   = 1 << 2
		fName    = 1 << 3
		fComment = 1 << 4
		fHCRC    = 1 << 1
	)

	if flg&fExtra != 0 {
		if pos+2 > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		xlen := int(data[pos]) | int(data[pos+1])<<8
		pos += 2 + xlen
	}
	if flg&fName != 0 {
		pos = skipNulTerminated(data, pos)
	}
	if flg&fComment != 0 {
		pos = skipNulTerminated(data, pos)
	}
	if flg&fHCRC != 0 {
		pos += 2
	}
	if pos > len(data)-8 {
		return nil, io.ErrUnexpectedEOF
	}

	deflateStream := data[pos : len(data)-8]
	r := flate.NewReader(bytes.NewReader(deflateStream))
	defer r.Close()
	return io.ReadAll(r)
}

func skipNulTerminated(data []byte, pos int) int {
	for pos < len(data) && data[pos] != 0 {
		pos++
	}
	return pos + 1
}
