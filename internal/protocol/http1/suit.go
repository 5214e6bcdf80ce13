package http1

import (
	"errors"
	"os"
	"time"

	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/http"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/internal/construct"
	"github.com/sww1235/tiny-http/internal/protocol"
	"github.com/sww1235/tiny-http/internal/queue"
	"github.com/sww1235/tiny-http/kv"
	"github.com/sww1235/tiny-http/transport"
)

// Suit is the per-connection engine: it parses request heads off the stream,
// hands complete requests over to the application via the queue, and writes
// the responses back as the application produces them. It also implements
// http.Responder, as responses are rendered on the application's goroutine.
type Suit struct {
	*Parser
	*Serializer
	cfg     *config.Config
	client  transport.Client
	body    *Body
	pending *queue.Queue
	request *http.Request
	// connResp is the builder for responses the connection synthesizes itself:
	// parse errors, timeouts, shutdown. Never exposed to the application.
	connResp *http.Response
}

func New(
	cfg *config.Config,
	client transport.Client,
	pending *queue.Queue,
	request *http.Request,
	body *Body,
	parser *Parser,
	serializer *Serializer,
) *Suit {
	return &Suit{
		Parser:     parser,
		Serializer: serializer,
		cfg:        cfg,
		client:     client,
		body:       body,
		pending:    pending,
		request:    request,
		connResp:   http.NewResponse(),
	}
}

// Initialize is the same constructor as just New, but derives all the moving
// parts from the config by itself.
func Initialize(cfg *config.Config, client transport.Client, pending *queue.Queue) *Suit {
	s := &Suit{
		cfg:      cfg,
		client:   client,
		pending:  pending,
		connResp: http.NewResponse(),
	}

	request := http.NewRequest(client, kv.NewPrealloc(cfg.Headers.Number.Default), s)
	body := NewBody(client, construct.Chunked(cfg.Body), cfg.Body)
	request.Body = http.NewBody(body)

	keyBuff, valBuff, startLineBuff := construct.Buffers(cfg)

	s.request = request
	s.body = body
	s.Parser = NewParser(request, keyBuff, valBuff, startLineBuff, cfg.Headers)
	s.Serializer = NewSerializer(
		make([]byte, 0, cfg.HTTP.ResponseBuffSize), cfg.HTTP.StreamBuffSize, cfg.Headers.Default,
	)

	return s
}

// Serve drives the connection until it dies: either by a networking error, a
// protocol violation, an unconsumed body too big to drain, or a deliberate
// close (Connection: close, timeout, shutdown).
func (s *Suit) Serve() {
	for s.serve() {
	}

	_ = s.client.Close()
}

func (s *Suit) serve() (ok bool) {
	client, request := s.client, s.request

	data, err := client.Read()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) && !s.Parser.Idle() {
			// the peer started a request head but never finished it
			s.reject(status.ErrRequestTimeout)
		}

		return false
	}

	state, extra, err := s.Parse(data)
	switch state {
	case protocol.Pending:
		return true
	case protocol.HeadersCompleted:
	case protocol.Error:
		s.reject(err)
		return false
	default:
		panic("BUG: got unexpected parser state")
	}

	client.Unread(extra)

	if request.Encoding.Chunked && request.ContentLength != 0 &&
		!s.cfg.Body.AllowAmbiguousFraming {
		// Transfer-Encoding together with Content-Length is a known
		// request-smuggling vector, refuse politely
		s.reject(status.ErrAmbiguousFraming)
		return false
	}

	s.body.Init(request)

	if err = s.pending.Push(request); err != nil {
		// the engine is shutting down
		s.reject(err)
		return false
	}

	if !s.await(request) {
		return false
	}

	return s.next(request)
}

// Respond implements http.Responder. It is invoked on the application's
// goroutine, the serializer and the socket are safe to touch because the
// connection goroutine is parked in await by now.
func (s *Suit) Respond(request *http.Request, response *http.Response) error {
	return s.Serializer.Write(request.Proto, request, response, s.client)
}

// await parks the connection until the application responds to the request.
// If it doesn't happen in HTTP.ResponseTimeout, the connection claims the
// request back, answers 408 Request Timeout and reports the connection dead.
func (s *Suit) await(request *http.Request) (ok bool) {
	timeout := time.NewTimer(s.cfg.HTTP.ResponseTimeout)
	defer timeout.Stop()

	select {
	case err := <-request.Done():
		return err == nil
	case <-timeout.C:
		if request.Claim() {
			s.reject(status.ErrRequestTimeout)
			return false
		}

		// lost the race: the response is already being written
		err := <-request.Done()
		return err == nil
	}
}

// next decides whether the stream is safe to parse the following request from,
// and prepares the state for it.
func (s *Suit) next(request *http.Request) (ok bool) {
	if request.Expect && s.body.AwaitingContinue() {
		// the final response was sent before the client was invited to send
		// the body, so the stream position is undefined
		return false
	}

	if err := s.body.Drain(s.cfg.Body.MaxDrainSize); err != nil {
		return false
	}

	request.Reset()

	return true
}

// reject renders an in-connection response for an error the application never
// sees. The connection is done for anyway, so write errors are of no interest.
func (s *Suit) reject(err error) {
	_ = s.Serializer.Write(s.request.Proto, s.request, s.connResp.Clear().Error(err), s.client)
}
