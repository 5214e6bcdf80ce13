package config

import (
	"math"
	"time"
)

type (
	HeadersNumber struct {
		Default, Maximal int
	}

	HeadersSpace struct {
		Default, Maximal int
	}

	RequestLineSize struct {
		Default, Maximal int
	}
)

type (
	URI struct {
		// RequestLineSize is a shared buffer storing the method, the raw
		// request-target and the protocol token. The maximal boundary protects
		// against hostile peers streaming an endless request line.
		RequestLineSize RequestLineSize
	}

	Headers struct {
		// Number is responsible for the headers storage size.
		// Default value is the initial capacity of the headers storage.
		// Maximal value is the maximum number of headers allowed in a request.
		Number HeadersNumber
		// Space limits the amount of memory occupied by request headers.
		Space HeadersSpace
		// MaxEncodingTokens limits the number of Transfer-Encoding codings a
		// request may carry.
		MaxEncodingTokens int
		// Default headers are included into every response implicitly, unless
		// explicitly overridden by the application.
		Default map[string]string
	}

	Body struct {
		// MaxSize limits how big a request body can be. Exceeding it results in
		// status.ErrBodyTooLarge and the connection being closed.
		MaxSize uint
		// MaxChunkSize limits a single chunk of a chunk-encoded body.
		MaxChunkSize int64
		// MaxDrainSize bounds how many leftover body bytes the engine is willing
		// to silently read through in order to keep the connection alive, in
		// case the application responded without consuming the body. Leftovers
		// above the bound close the connection instead.
		MaxDrainSize uint
		// AllowAmbiguousFraming permits requests carrying both Transfer-Encoding:
		// chunked and Content-Length. Such requests are a known request-smuggling
		// vector (RFC 7230 section 3.3.3) and are rejected by default.
		AllowAmbiguousFraming bool
	}

	NET struct {
		// ReadBufferSize is the size of the buffer in bytes used for reads from
		// a socket.
		ReadBufferSize int
		// ReadTimeout controls the maximal lifetime of IDLE connections. If no
		// data was received in this period of time, the connection is closed.
		ReadTimeout time.Duration
		// AcceptLoopInterruptPeriod controls how often the Accept() call is
		// interrupted in order to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration
		// MaxConnections bounds the number of concurrently served connections.
		// Connections accepted above the bound are immediately closed instead
		// of being queued without limit. Zero means no bound.
		MaxConnections int
	}

	HTTP struct {
		// ResponseBuffSize is the initial size of the buffer a response is
		// rendered into.
		ResponseBuffSize int
		// StreamBuffSize is the size of the buffer used to pump sized and
		// chunked attachment streams into the socket.
		StreamBuffSize int
		// ResponseTimeout bounds how long a connection waits for the
		// application to respond to a pulled request. On expiry the engine
		// synthesizes 408 Request Timeout and closes the connection.
		ResponseTimeout time.Duration
		// PendingRequests is the capacity of the requests queue. Connections
		// whose requests don't fit simply wait for a free slot, so the value
		// trades memory for burst smoothing, not correctness.
		PendingRequests int
	}
)

// Config holds settings used across the engine, mainly restrictions,
// limitations and pre-allocations.
//
// Always modify defaults (returned via Default()) instead of instantiating
// the struct manually, otherwise zero limits will reject everything.
type Config struct {
	URI     URI
	Headers Headers
	Body    Body
	NET     NET
	HTTP    HTTP
}

// Default returns the default config. The defaults are well-balanced,
// maximums are pretty permitting.
func Default() *Config {
	return &Config{
		URI: URI{
			RequestLineSize: RequestLineSize{
				Default: 2 * 1024,
				// most web-entities limit the request line to 4-8kb, so 16kb
				// is effectively tolerant
				Maximal: 16 * 1024,
			},
		},
		Headers: Headers{
			Number: HeadersNumber{
				Default: 10,
				Maximal: 50,
			},
			Space: HeadersSpace{
				Default: 1 * 1024, // 1kb for headers is fairly enough in most cases.
				Maximal: 16 * 1024,
			},
			MaxEncodingTokens: 4,
			Default: map[string]string{
				"Server": "tiny-http (Go)",
			},
		},
		Body: Body{
			MaxSize:      512 * 1024 * 1024, // 512 megabytes
			MaxChunkSize: math.MaxInt64,
			MaxDrainSize: 512 * 1024,
		},
		NET: NET{
			ReadBufferSize:            2 * 1024,
			ReadTimeout:               90 * time.Second,
			AcceptLoopInterruptPeriod: 5 * time.Second,
			MaxConnections:            0,
		},
		HTTP: HTTP{
			ResponseBuffSize: 1024,
			StreamBuffSize:   64 * 1024,
			ResponseTimeout:  90 * time.Second,
			PendingRequests:  64,
		},
	}
}
