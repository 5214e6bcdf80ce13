package response

import "io"

// Attachment is a wrapper for io.Reader, with the difference that there is the size attribute.
// If a positive value is set, an ordinary sized response is rendered. Otherwise, chunked
// transfer encoding is used.
type Attachment struct {
	content io.Reader
	size    int
}

func NewAttachment(content io.Reader, size int) Attachment {
	return Attachment{
		content: content,
		size:    size,
	}
}

func (a Attachment) Content() io.Reader {
	return a.content
}

func (a Attachment) Size() int {
	return a.size
}

func (a Attachment) Close() {
	if closer, ok := a.content.(io.Closer); ok {
		_ = closer.Close()
	}
}
