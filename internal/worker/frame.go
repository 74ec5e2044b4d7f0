// Package worker runs heavy document transforms in isolated execution
// contexts. The issuer and the worker share no memory: every request and
// every event crosses a byte stream as a length-prefixed msgpack frame.
//
// A conversation is always one request frame from the issuer, followed by
// zero or more progress frames and exactly one terminal frame from the worker.
package worker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Lllllllleong/docpipeline/internal/models"
)

const (
	// LengthPrefixSize is the size of the big-endian length prefix in bytes.
	LengthPrefixSize = 4
	// MaxPayloadSize bounds a single frame payload (1 GiB).
	MaxPayloadSize = 1 << 30
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a payload exceeding MaxPayloadSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a payload that is not a known message.
	FrameErrorDecode
	// FrameErrorInvalid indicates a message that fails validation.
	FrameErrorInvalid
)

// FrameError is a framing or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFrameError reports whether err is a *FrameError of the given kind.
func IsFrameError(err error, kind FrameErrorKind) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == kind
}

// envelope is the wire form of every message: a type discriminant and the
// msgpack-encoded typed body.
type envelope struct {
	Type string             `msgpack:"type"`
	Body msgpack.RawMessage `msgpack:"body"`
}

// WriteFrame writes payload with its length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write frame prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}
	return nil
}

// FrameDecoder reads length-prefixed frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads one frame and returns its payload. It returns io.EOF when
// the stream ends cleanly between frames.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

func encode(kind string, body any) ([]byte, error) {
	if err := models.Validate(body); err != nil {
		return nil, &FrameError{Kind: FrameErrorInvalid, Msg: "refusing to encode " + kind, Err: err}
	}
	raw, err := msgpack.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s body: %w", kind, err)
	}
	payload, err := msgpack.Marshal(&envelope{Type: kind, Body: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", kind, err)
	}
	return payload, nil
}

func openEnvelope(payload []byte) (*envelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode envelope", Err: err}
	}
	return &env, nil
}

func decodeBody[T any](env *envelope) (T, error) {
	var body T
	if err := msgpack.Unmarshal(env.Body, &body); err != nil {
		return body, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode " + env.Type, Err: err}
	}
	if err := models.Validate(body); err != nil {
		return body, &FrameError{Kind: FrameErrorInvalid, Msg: "received invalid " + env.Type, Err: err}
	}
	return body, nil
}

// EncodeRequest validates req and encodes it as a frame payload.
func EncodeRequest(req models.Request) ([]byte, error) {
	if req == nil {
		return nil, &FrameError{Kind: FrameErrorInvalid, Msg: "nil request"}
	}
	return encode(string(req.Kind()), req)
}

// DecodeRequest decodes and validates a request payload.
func DecodeRequest(payload []byte) (models.Request, error) {
	env, err := openEnvelope(payload)
	if err != nil {
		return nil, err
	}
	switch models.Kind(env.Type) {
	case models.KindMerge:
		return decodeBody[models.MergeRequest](env)
	case models.KindSplit:
		return decodeBody[models.SplitRequest](env)
	case models.KindCompress:
		return decodeBody[models.CompressRequest](env)
	default:
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown request kind %q", env.Type)}
	}
}

// EncodeEvent validates ev and encodes it as a frame payload.
func EncodeEvent(ev models.Event) ([]byte, error) {
	if ev == nil {
		return nil, &FrameError{Kind: FrameErrorInvalid, Msg: "nil event"}
	}
	return encode(string(ev.Type()), ev)
}

// DecodeEvent decodes and validates an event payload.
func DecodeEvent(payload []byte) (models.Event, error) {
	env, err := openEnvelope(payload)
	if err != nil {
		return nil, err
	}
	switch models.EventType(env.Type) {
	case models.EventProgress:
		return decodeBody[models.Progress](env)
	case models.EventSuccess:
		return decodeBody[models.Success](env)
	case models.EventFailure:
		return decodeBody[models.Failure](env)
	case models.EventSuccessBatch:
		return decodeBody[models.SuccessBatch](env)
	default:
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown event type %q", env.Type)}
	}
}
