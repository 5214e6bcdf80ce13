package http

import "github.com/sww1235/tiny-http/kv"

type (
	Headers = *kv.Storage
	Header  = kv.Pair
)

// Encoding describes the message framing of an inbound request.
type Encoding struct {
	// Transfer contains all applied Transfer-Encoding codings in their original order,
	// except the chunked. Chunked Transfer Encoding has its own boolean flag.
	Transfer []string
	// Chunked is set when the final transfer coding is chunked, in which case the
	// Content-Length value (if any) carries no meaning.
	Chunked bool
	// HasTrailer is set when the Trailer header was received.
	HasTrailer bool
}
