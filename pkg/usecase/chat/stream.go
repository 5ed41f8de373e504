package chat

import (
	"errors"
	"io"
	"iter"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/text/encoding/unicode"
)

const streamBufferSize = 4096

// DecodeStream yields UTF-8 text fragments of r in arrival order until EOF.
// Decoding keeps state between reads, so a multi-byte character split across
// two chunks comes out whole in a single fragment. Ranging over the sequence
// again continues from where the previous loop stopped.
func DecodeStream(r io.Reader) iter.Seq2[string, error] {
	decoded := unicode.UTF8.NewDecoder().Reader(r)

	return func(yield func(string, error) bool) {
		buf := make([]byte, streamBufferSize)
		for {
			n, err := decoded.Read(buf)
			if n > 0 {
				if !yield(string(buf[:n]), nil) {
					return
				}
			}

			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", goerr.Wrap(err, "failed to read answer stream"))
				return
			}
		}
	}
}
