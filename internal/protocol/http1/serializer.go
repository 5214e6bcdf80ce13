package http1

import (
	"io"
	"log"
	"strconv"
	"time"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	"github.com/sww1235/tiny-http/http"
	"github.com/sww1235/tiny-http/http/method"
	"github.com/sww1235/tiny-http/http/proto"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/internal/httpchars"
	"github.com/sww1235/tiny-http/internal/protocol"
	"github.com/sww1235/tiny-http/internal/response"
	"github.com/sww1235/tiny-http/internal/timer"
	"github.com/sww1235/tiny-http/kv"
)

const (
	contentType      = "Content-Type: "
	transferEncoding = "Transfer-Encoding: "
	contentLength    = "Content-Length: "
	date             = "Date: "
)

// minimalStreamBuffSize defines the minimal size of the stream buffer. In case it's
// less it'll be set to this value and debug log will be printed
const minimalStreamBuffSize = 16

var chunkedFinalizer = []byte("0\r\n\r\n")

var zoneGMT = time.FixedZone("GMT", 0)

type Serializer struct {
	buff []byte
	// streamBuff isn't allocated until needed in order to save memory in cases,
	// where no attachments are being sent
	streamBuff     []byte
	streamBuffSize int
	dateBuff       []byte
	dateUnix       int64
	sentDate       bool
	defaultHeaders defaultHeaders
}

func NewSerializer(buff []byte, streamBuffSize int, defHdrs map[string]string) *Serializer {
	if streamBuffSize < minimalStreamBuffSize {
		log.Printf("misconfiguration: stream buffer size (HTTP.StreamBuffSize) is set to %d, "+
			"however minimal possible value is %d. Setting it hard to %d\n",
			streamBuffSize, minimalStreamBuffSize, minimalStreamBuffSize,
		)

		streamBuffSize = minimalStreamBuffSize
	}

	return &Serializer{
		buff:           buff[:0],
		streamBuffSize: streamBuffSize,
		defaultHeaders: processDefaultHeaders(defHdrs),
	}
}

// Write renders the response and sends it to the wire, keeping in mind the differences
// between 1.0 and 1.1 HTTP versions. The returned status.ErrCloseConnection signals
// that the message was delivered, but the connection must not be re-used afterwards.
func (d *Serializer) Write(
	protocol proto.Proto, request *http.Request, resp *http.Response, writer protocol.Writer,
) (err error) {
	defer d.clear()

	d.renderProtocol(protocol)
	fields := resp.Reveal()
	d.renderResponseLine(fields)

	switch {
	case fields.Attachment.Content() != nil:
		err = d.sendAttachment(request, fields, writer)
	case bodyForbidden(fields.Code):
		// 1xx, 204 and 304 responses must carry neither a body nor its framing
		d.renderHeaders(fields)
		d.crlf()
		err = writer.Write(d.buff)
	default:
		d.renderHeaders(fields)
		d.renderContentLength(int64(len(fields.Body)))
		d.crlf()

		if request.Method != method.HEAD {
			// HEAD request responses must be similar to GET request responses, except
			// forced lack of body, even if Content-Length is specified
			d.buff = append(d.buff, fields.Body...)
		}

		err = writer.Write(d.buff)
	}

	if err != nil {
		return err
	}

	if !isKeepAlive(protocol, request) {
		return status.ErrCloseConnection
	}

	return nil
}

func (d *Serializer) renderResponseLine(fields *response.Fields) {
	codeStatus := status.CodeStatus(fields.Code)

	if fields.Status == "" && codeStatus != "" {
		d.buff = append(d.buff, codeStatus...)
		return
	}

	// in case we have a custom response status text or unknown code, fallback to an old way
	d.buff = strconv.AppendInt(d.buff, int64(fields.Code), 10)
	d.sp()

	statusText := fields.Status
	if statusText == "" {
		statusText = status.Text(fields.Code)
	}

	d.buff = append(d.buff, statusText...)
	d.crlf()
}

func (d *Serializer) renderHeaders(fields *response.Fields) {
	for _, header := range fields.Headers {
		d.renderHeader(header)
		d.defaultHeaders.Exclude(header.Key)

		if strcomp.EqualFold(header.Key, "date") {
			d.sentDate = true
		}
	}

	for _, header := range d.defaultHeaders {
		if header.Excluded {
			continue
		}

		d.buff = append(d.buff, header.Full...)
	}

	if !d.sentDate {
		d.renderDate()
	}

	// Content-Type is compulsory. Transfer-Encoding is not
	d.renderKnownHeader(contentType, fields.ContentType)
	if len(fields.TransferEncoding) > 0 {
		d.renderKnownHeader(transferEncoding, fields.TransferEncoding)
	}
}

// sendAttachment simply encapsulates all the logic related to rendering arbitrary
// io.Reader implementations
func (d *Serializer) sendAttachment(
	request *http.Request, fields *response.Fields, writer protocol.Writer,
) (err error) {
	size := fields.Attachment.Size()

	d.renderHeaders(fields)

	if size > 0 {
		d.renderContentLength(int64(size))
	} else {
		d.renderKnownHeader(transferEncoding, "chunked")
	}

	d.crlf()

	if err = writer.Write(d.buff); err != nil {
		return err
	}

	if request.Method == method.HEAD {
		// HEAD requests MUST NOT contain response bodies. They are just like
		// GET request, but without response entities
		return nil
	}

	if len(d.streamBuff) == 0 {
		d.streamBuff = make([]byte, d.streamBuffSize)
	}

	if size > 0 {
		err = d.writePlainBody(fields.Attachment.Content(), writer)
	} else {
		err = d.writeChunkedBody(fields.Attachment.Content(), writer)
	}

	fields.Attachment.Close()

	return err
}

func (d *Serializer) writePlainBody(r io.Reader, writer protocol.Writer) error {
	for {
		n, err := r.Read(d.streamBuff)

		if n > 0 {
			if werr := writer.Write(d.streamBuff[:n]); werr != nil {
				return werr
			}
		}

		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return status.ErrCloseConnection
		}
	}
}

func (d *Serializer) writeChunkedBody(r io.Reader, writer protocol.Writer) error {
	const (
		hexValueOffset = 8
		crlfSize       = 1 /* CR */ + 1 /* LF */
		buffOffset     = hexValueOffset + crlfSize
	)

	for {
		n, err := r.Read(d.streamBuff[buffOffset : len(d.streamBuff)-crlfSize])

		if n > 0 {
			// first rewrite begin of the streamBuff to contain our hexdecimal value
			buff := strconv.AppendUint(d.streamBuff[:0], uint64(n), 16)
			// now we can determine the length of the hexdecimal value and make an
			// offset for it
			blankSpace := hexValueOffset - len(buff)
			copy(d.streamBuff[blankSpace:], buff)
			copy(d.streamBuff[hexValueOffset:], httpchars.CRLF)
			copy(d.streamBuff[buffOffset+n:], httpchars.CRLF)

			if werr := writer.Write(d.streamBuff[blankSpace : buffOffset+n+crlfSize]); werr != nil {
				return werr
			}
		}

		switch err {
		case nil:
		case io.EOF:
			return writer.Write(chunkedFinalizer)
		default:
			return status.ErrCloseConnection
		}
	}
}

// renderHeader writes a complete header field line including the trailing CRLF
func (d *Serializer) renderHeader(header kv.Pair) {
	d.buff = append(d.buff, header.Key...)
	d.colonsp()
	d.buff = append(d.buff, header.Value...)
	d.crlf()
}

func (d *Serializer) renderContentLength(value int64) {
	d.buff = strconv.AppendInt(append(d.buff, contentLength...), value, 10)
	d.crlf()
}

func (d *Serializer) renderKnownHeader(key, value string) {
	d.buff = append(d.buff, key...)
	d.buff = append(d.buff, value...)
	d.crlf()
}

func (d *Serializer) renderDate() {
	now := timer.Now()
	if unix := now.Unix(); unix != d.dateUnix {
		// the clock is coarse, so most of the time the rendered value is re-used
		d.dateUnix = unix
		d.dateBuff = now.In(zoneGMT).AppendFormat(d.dateBuff[:0], time.RFC1123)
	}

	d.buff = append(d.buff, date...)
	d.buff = append(d.buff, d.dateBuff...)
	d.crlf()
}

func (d *Serializer) renderProtocol(protocol proto.Proto) {
	if protocol == proto.Unknown {
		// in case the request line was malformed, the parser had no chance of
		// reaching the protocol token. Responding with 1.1 is the best guess then
		protocol = proto.HTTP11
	}

	// the protocol token already carries the trailing space
	d.buff = append(d.buff, protocol.String()...)
}

func (d *Serializer) sp() {
	d.buff = append(d.buff, ' ')
}

func (d *Serializer) colonsp() {
	d.buff = append(d.buff, httpchars.COLONSP...)
}

func (d *Serializer) crlf() {
	d.buff = append(d.buff, httpchars.CRLF...)
}

func (d *Serializer) clear() {
	d.buff = d.buff[:0]
	d.sentDate = false
	d.defaultHeaders.Reset()
}

// bodyForbidden reports response codes which must not carry a message body
// (RFC 7230, 3.3.3)
func bodyForbidden(code status.Code) bool {
	return code < 200 || code == status.NoContent || code == status.NotModified
}

func isKeepAlive(protocol proto.Proto, request *http.Request) bool {
	if strcomp.EqualFold(request.Connection, "upgrade") {
		// whatever the peer upgrades to, it isn't HTTP/1 anymore
		return false
	}

	switch protocol {
	case proto.HTTP10:
		return strcomp.EqualFold(request.Connection, "keep-alive")
	case proto.HTTP11:
		// in case of HTTP/1.1, keep-alive may be only disabled
		return !strcomp.EqualFold(request.Connection, "close")
	default:
		// don't know what this is, but act like everything is okay
		return false
	}
}

func processDefaultHeaders(hdrs map[string]string) defaultHeaders {
	processed := make(defaultHeaders, 0, len(hdrs))

	for key, value := range hdrs {
		full := renderHeader(key, value)
		processed = append(processed, defaultHeader{
			// we let the GC release all the values of the map, as here we're using only
			// the brand-new line without keeping the original string
			Key:  full[:len(key)],
			Full: full,
		})
	}

	return processed
}

func renderHeader(key, value string) string {
	return key + httpchars.COLONSP + value + uf.B2S(httpchars.CRLF)
}

type defaultHeader struct {
	Excluded bool
	Key      string
	Full     string
}

type defaultHeaders []defaultHeader

func (d defaultHeaders) Exclude(key string) {
	for i, header := range d {
		if strcomp.EqualFold(header.Key, key) {
			header.Excluded = true
			d[i] = header
			return
		}
	}
}

func (d defaultHeaders) Reset() {
	for i := range d {
		d[i].Excluded = false
	}
}
