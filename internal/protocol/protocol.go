package protocol

// RequestState represents the state of the request head parsing.
type RequestState uint8

const (
	Pending RequestState = iota + 1
	HeadersCompleted
	Error
)

type Writer interface {
	Write([]byte) error
}
