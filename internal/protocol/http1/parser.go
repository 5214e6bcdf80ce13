package http1

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/indigo-web/utils/buffer"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/http"
	"github.com/sww1235/tiny-http/http/method"
	"github.com/sww1235/tiny-http/http/proto"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/internal/protocol"
)

type parserState uint8

const (
	eMethod parserState = iota + 1
	eTarget
	eHeaderKey
	eContentLength
	eContentLengthCR
	eHeaderValue
	eHeaderValueCRLFCR
)

// Parser is a stream-based request head parser. It modifies the request object
// by pointer in performance purposes. The arriving data may be sliced at any
// point, the parser carries its state across calls. When the head is complete,
// protocol.HeadersCompleted is returned along with all the pending data as an
// extra. The body must be processed separately.
type Parser struct {
	request             *http.Request
	startLineBuff       *buffer.Buffer
	headerKeyBuff       *buffer.Buffer
	headerValueBuff     *buffer.Buffer
	encToksBuff         []string
	headerKey           string
	headersCfg          *config.Headers
	headersNumber       int
	contentLength       int
	metContentLength    bool
	metTransferEncoding bool
	state               parserState
}

func NewParser(
	request *http.Request, keyBuff, valBuff, startLineBuff *buffer.Buffer, headersCfg config.Headers,
) *Parser {
	return &Parser{
		state:           eMethod,
		request:         request,
		headersCfg:      &headersCfg,
		startLineBuff:   startLineBuff,
		encToksBuff:     make([]string, 0, headersCfg.MaxEncodingTokens),
		headerKeyBuff:   keyBuff,
		headerValueBuff: valBuff,
	}
}

// Idle reports whether not a single byte of the pending request head was
// received yet.
func (p *Parser) Idle() bool {
	return p.state == eMethod && p.startLineBuff.SegmentLength() == 0
}

func (p *Parser) Parse(data []byte) (state protocol.RequestState, extra []byte, err error) {
	_ = *p.request
	request := p.request
	headerKeyBuff := p.headerKeyBuff
	headerValueBuff := p.headerValueBuff

	switch p.state {
	case eMethod:
		goto method
	case eTarget:
		goto target
	case eHeaderKey:
		goto headerKey
	case eContentLength:
		goto contentLength
	case eContentLengthCR:
		goto contentLengthCR
	case eHeaderValue:
		goto headerValue
	case eHeaderValueCRLFCR:
		goto headerValueCRLFCR
	default:
		panic(fmt.Sprintf("BUG: unexpected state: %v", p.state))
	}

method:
	{
		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			if !p.startLineBuff.Append(data) {
				return protocol.Error, nil, status.ErrTooLongRequestLine
			}

			return protocol.Pending, nil, nil
		}

		var methodValue []byte
		if p.startLineBuff.SegmentLength() == 0 {
			methodValue = data[:sp]
		} else {
			if !p.startLineBuff.Append(data[:sp]) {
				return protocol.Error, nil, status.ErrTooLongRequestLine
			}

			methodValue = p.startLineBuff.Finish()
		}

		if len(methodValue) == 0 {
			return protocol.Error, nil, status.ErrBadRequest
		}

		request.Method = method.Parse(uf.B2S(methodValue))
		if request.Method == method.Unknown {
			return protocol.Error, nil, status.ErrMethodNotImplemented
		}

		data = data[sp+1:]
		p.state = eTarget
		goto target
	}

target:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !p.startLineBuff.Append(data) {
				return protocol.Error, nil, status.ErrURITooLong
			}

			return protocol.Pending, nil, nil
		}

		if !p.startLineBuff.Append(data[:lf]) {
			return protocol.Error, nil, status.ErrURITooLong
		}

		targetAndProto := p.startLineBuff.Finish()
		sp := bytes.LastIndexByte(targetAndProto, ' ')
		if sp == -1 {
			return protocol.Error, nil, status.ErrBadRequest
		}

		reqTarget, reqProto := targetAndProto[:sp], targetAndProto[sp+1:]
		if len(reqProto) > 0 && reqProto[len(reqProto)-1] == '\r' {
			reqProto = reqProto[:len(reqProto)-1]
		}

		if len(reqTarget) == 0 || bytes.IndexByte(reqTarget, ' ') != -1 {
			return protocol.Error, nil, status.ErrBadRequest
		}

		// the target is left untouched, exactly as it appeared on the wire.
		// Interpreting it is the application's job.
		request.Target = uf.B2S(reqTarget)
		request.Proto = proto.FromBytes(reqProto)
		if request.Proto == proto.Unknown {
			return protocol.Error, nil, status.ErrUnsupportedProtocol
		}

		data = data[lf+1:]
		p.state = eHeaderKey
		goto headerKey
	}

headerKey:
	{
		if len(data) == 0 {
			return protocol.Pending, nil, nil
		}

		switch data[0] {
		case '\n':
			p.reset()

			return protocol.HeadersCompleted, data[1:], nil
		case '\r':
			data = data[1:]
			p.state = eHeaderValueCRLFCR
			goto headerValueCRLFCR
		}

		colon := bytes.IndexByte(data, ':')
		if colon == -1 {
			if !headerKeyBuff.Append(data) {
				return protocol.Error, nil, status.ErrHeaderFieldsTooLarge
			}

			return protocol.Pending, nil, nil
		}

		if !headerKeyBuff.Append(data[:colon]) {
			return protocol.Error, nil, status.ErrHeaderFieldsTooLarge
		}

		p.headerKey = uf.B2S(headerKeyBuff.Finish())
		data = data[colon+1:]

		if len(p.headerKey) == 0 || containsCTL(p.headerKey) {
			return protocol.Error, nil, status.ErrBadRequest
		}

		if p.headersNumber++; p.headersNumber > p.headersCfg.Number.Maximal {
			return protocol.Error, nil, status.ErrTooManyHeaders
		}

		if strcomp.EqualFold(p.headerKey, "content-length") {
			if p.metContentLength {
				return protocol.Error, nil, status.ErrBadRequest
			}

			p.metContentLength = true
			p.state = eContentLength
			goto contentLength
		}

		p.state = eHeaderValue
		goto headerValue
	}

contentLength:
	for i, char := range data {
		if char == ' ' {
			continue
		}

		if char < '0' || char > '9' {
			data = data[i:]
			goto contentLengthEnd
		}

		if p.contentLength > (math.MaxInt-9)/10 {
			// the accumulator is about to overflow. No legitimate peer carries
			// a body this big, but a hostile one may try to desync the framing
			return protocol.Error, nil, status.ErrBadRequest
		}

		p.contentLength = p.contentLength*10 + int(char-'0')
	}

	return protocol.Pending, nil, nil

contentLengthEnd:
	// guaranteed, that data at this point contains AT LEAST 1 byte.
	// The proof is, that this code is reachable ONLY if loop has reached a non-digit
	// ascii symbol. In case loop has finished peacefully, as no more data left, but also no
	// character found to satisfy the exit condition, this code will never be reached
	request.ContentLength = p.contentLength

	switch data[0] {
	case '\r':
		data = data[1:]
		p.state = eContentLengthCR
		goto contentLengthCR
	case '\n':
		data = data[1:]
		p.state = eHeaderKey
		goto headerKey
	default:
		return protocol.Error, nil, status.ErrBadRequest
	}

contentLengthCR:
	if len(data) == 0 {
		return protocol.Pending, nil, nil
	}

	if data[0] != '\n' {
		return protocol.Error, nil, status.ErrBadRequest
	}

	data = data[1:]
	p.state = eHeaderKey
	goto headerKey

headerValue:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !headerValueBuff.Append(data) {
				return protocol.Error, nil, status.ErrHeaderFieldsTooLarge
			}

			return protocol.Pending, nil, nil
		}

		if !headerValueBuff.Append(data[:lf]) {
			return protocol.Error, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[lf+1:]
		value := uf.B2S(trimPrefixSpaces(headerValueBuff.Finish()))
		if len(value) > 0 && value[len(value)-1] == '\r' {
			value = value[:len(value)-1]
		}

		request.Headers.Add(p.headerKey, value)

		switch len(p.headerKey) {
		case 6:
			if strcomp.EqualFold(p.headerKey, "expect") {
				if !strcomp.EqualFold(value, "100-continue") {
					return protocol.Error, nil, status.ErrExpectationFailed
				}

				request.Expect = true
			}
		case 7:
			if strcomp.EqualFold(p.headerKey, "trailer") {
				request.Encoding.HasTrailer = true
			}
		case 10:
			if strcomp.EqualFold(p.headerKey, "connection") {
				request.Connection = value
			}
		case 17:
			if strcomp.EqualFold(p.headerKey, "transfer-encoding") {
				if p.metTransferEncoding {
					return protocol.Error, nil, status.ErrUnsupportedEncoding
				}

				p.metTransferEncoding = true
				p.encToksBuff, request.Encoding.Transfer, request.Encoding.Chunked, err = parseTransferEncoding(
					p.encToksBuff, value,
				)
				if err != nil {
					return protocol.Error, nil, err
				}
			}
		}

		p.state = eHeaderKey
		goto headerKey
	}

headerValueCRLFCR:
	if len(data) == 0 {
		return protocol.Pending, nil, nil
	}

	if data[0] == '\n' {
		p.reset()

		return protocol.HeadersCompleted, data[1:], nil
	}

	return protocol.Error, nil, status.ErrBadRequest
}

func (p *Parser) reset() {
	p.headersNumber = 0
	p.startLineBuff.Clear()
	p.headerKeyBuff.Clear()
	p.headerValueBuff.Clear()
	p.contentLength = 0
	p.metContentLength = false
	p.metTransferEncoding = false
	p.encToksBuff = p.encToksBuff[:0]
	p.state = eMethod
}

// parseTransferEncoding splits the comma-separated codings list. The chunked
// coding is required to come last (RFC 7230, 3.3.1) and is reported via the
// flag instead of the tokens list.
func parseTransferEncoding(buff []string, value string) (alteredBuff, toks []string, chunked bool, err error) {
	offset := len(buff)

	for len(value) > 0 {
		var token string
		comma := strings.IndexByte(value, ',')
		if comma == -1 {
			token, value = value, ""
		} else {
			token, value = value[:comma], value[comma+1:]
		}

		token = strings.TrimSpace(token)
		if len(token) == 0 {
			continue
		}

		if chunked {
			// something came after the chunked coding
			return buff, nil, false, status.ErrUnsupportedEncoding
		}

		if strcomp.EqualFold(token, "chunked") {
			chunked = true
			continue
		}

		if len(buff) >= cap(buff) {
			return buff, nil, false, status.ErrUnsupportedEncoding
		}

		buff = append(buff, token)
	}

	return buff, buff[offset:], chunked, nil
}

// containsCTL reports whether the header name carries ASCII control
// characters, CR and LF included.
func containsCTL(key string) bool {
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] == 0x7f {
			return true
		}
	}

	return false
}

func trimPrefixSpaces(b []byte) []byte {
	for i, char := range b {
		if char != ' ' {
			return b[i:]
		}
	}

	return b[:0]
}
