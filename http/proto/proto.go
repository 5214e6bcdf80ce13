package proto

import "github.com/indigo-web/utils/uf"

type Proto uint8

const (
	Unknown Proto = iota
	HTTP10
	HTTP11
)

// String returns the protocol token WITH A TRAILING SPACE, so it can be
// appended straight into a response line.
func (p Proto) String() string {
	lut := [...]string{HTTP10: "HTTP/1.0 ", HTTP11: "HTTP/1.1 "}
	if int(p) >= len(lut) {
		return ""
	}

	return lut[p]
}

// Major and Minor expose the version pair, mostly for diagnostics.
func (p Proto) Major() uint8 { return 1 }

func (p Proto) Minor() uint8 {
	if p == HTTP10 {
		return 0
	}

	return 1
}

const (
	protoTokenLength   = len("HTTP/x.x")
	majorVersionOffset = len("HTTP/x") - 1
	minorVersionOffset = len("HTTP/x.x") - 1
	httpScheme         = "HTTP/"
)

// FromBytes parses a "HTTP/x.x" token. Everything beside HTTP/1.0 and
// HTTP/1.1, including malformed tokens, results in Unknown.
func FromBytes(raw []byte) Proto {
	if len(raw) != protoTokenLength ||
		uf.B2S(raw[:majorVersionOffset]) != httpScheme ||
		raw[majorVersionOffset+1] != '.' {
		return Unknown
	}

	return Parse(raw[majorVersionOffset]-'0', raw[minorVersionOffset]-'0')
}

func Parse(major, minor uint8) Proto {
	if major == 1 {
		switch minor {
		case 0:
			return HTTP10
		case 1:
			return HTTP11
		}
	}

	return Unknown
}
