package models

// These structs define the typed messages exchanged between the issuing
// session and a transform worker. Requests and events form closed sets:
// only the types in this file implement Request and Event.

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind identifies the operation a worker performs.
type Kind string

const (
	KindMerge    Kind = "merge"
	KindSplit    Kind = "split"
	KindCompress Kind = "compress_assembly"
)

// EventType identifies a worker-to-issuer message.
type EventType string

const (
	EventProgress     EventType = "progress"
	EventSuccess      EventType = "success"
	EventFailure      EventType = "failure"
	EventSuccessBatch EventType = "success_batch"
)

// SplitMode selects between one combined output and one output per page.
type SplitMode string

const (
	SplitSingle     SplitMode = "single"
	SplitIndividual SplitMode = "individual"
)

// QualityTier selects rasterization scale and JPEG quality for compression.
type QualityTier string

const (
	TierHigh     QualityTier = "high"
	TierStandard QualityTier = "standard"
	TierSmallest QualityTier = "smallest"
)

// TierSettings are the rasterization parameters for a QualityTier.
type TierSettings struct {
	Scale   float64
	Quality float64
}

var tierSettings = map[QualityTier]TierSettings{
	TierHigh:     {Scale: 1.0, Quality: 0.3},
	TierStandard: {Scale: 1.5, Quality: 0.5},
	TierSmallest: {Scale: 2.0, Quality: 0.7},
}

// Settings returns the parameters for t.
func (t QualityTier) Settings() (TierSettings, bool) {
	s, ok := tierSettings[t]
	return s, ok
}

// ParseTier validates a tier name.
func ParseTier(name string) (QualityTier, error) {
	t := QualityTier(name)
	if _, ok := tierSettings[t]; !ok {
		return "", fmt.Errorf("unknown quality tier %q (want high, standard or smallest)", name)
	}
	return t, nil
}

// InputDocument is one document payload handed to a worker.
type InputDocument struct {
	Name       string `msgpack:"name" validate:"required"`
	Data       []byte `msgpack:"data" validate:"required"`
	Rotation   int    `msgpack:"rotation" validate:"oneof=0 90 180 270"`
	Passphrase string `msgpack:"passphrase,omitempty"`
}

// NamedFile is one output of a multi-output transform.
type NamedFile struct {
	Name string `msgpack:"name" validate:"required"`
	Data []byte `msgpack:"data"`
}

// Request is a transform to run in a worker.
type Request interface {
	Kind() Kind
	isRequest()
}

// MergeRequest concatenates Inputs in order.
type MergeRequest struct {
	Inputs []InputDocument `msgpack:"inputs" validate:"min=1,dive"`
}

// SplitRequest extracts 1-based Pages from Input in selection order.
type SplitRequest struct {
	Input    InputDocument `msgpack:"input"`
	Pages    []int         `msgpack:"pages" validate:"min=1,dive,min=1"`
	Mode     SplitMode     `msgpack:"mode" validate:"oneof=single individual"`
	BaseName string        `msgpack:"baseName" validate:"required"`
}

// CompressRequest assembles pre-rasterized JPEG pages into a new document.
type CompressRequest struct {
	Name  string      `msgpack:"name" validate:"required"`
	Pages [][]byte    `msgpack:"pages" validate:"min=1,dive,min=1"`
	Tier  QualityTier `msgpack:"tier" validate:"oneof=high standard smallest"`
}

func (MergeRequest) Kind() Kind    { return KindMerge }
func (SplitRequest) Kind() Kind    { return KindSplit }
func (CompressRequest) Kind() Kind { return KindCompress }

func (MergeRequest) isRequest()    {}
func (SplitRequest) isRequest()    {}
func (CompressRequest) isRequest() {}

// Event is a message from a worker. Exactly one terminal event ends a request.
type Event interface {
	Type() EventType
	Terminal() bool
}

// Progress reports completion percent in [0, 100].
type Progress struct {
	Percent int `msgpack:"percent" validate:"min=0,max=100"`
}

// Success carries a single output document.
type Success struct {
	Data      []byte `msgpack:"data"`
	ByteCount int    `msgpack:"byteCount"`
}

// Failure carries a human-readable error message.
type Failure struct {
	Message string `msgpack:"message" validate:"required"`
}

// SuccessBatch carries several output documents.
type SuccessBatch struct {
	Files []NamedFile `msgpack:"files" validate:"min=1,dive"`
}

func (Progress) Type() EventType     { return EventProgress }
func (Success) Type() EventType      { return EventSuccess }
func (Failure) Type() EventType      { return EventFailure }
func (SuccessBatch) Type() EventType { return EventSuccessBatch }

func (Progress) Terminal() bool     { return false }
func (Success) Terminal() bool      { return true }
func (Failure) Terminal() bool      { return true }
func (SuccessBatch) Terminal() bool { return true }

var validate = validator.New()

// Validate checks a request or event against its struct constraints.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %T: %w", v, err)
	}
	return nil
}
