package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of a single document.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusLocked     Status = "LOCKED"
	StatusUnlocked   Status = "UNLOCKED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusError      Status = "ERROR"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid document status transition")

var transitions = map[Status][]Status{
	StatusPending:    {StatusLocked, StatusUnlocked, StatusError},
	StatusLocked:     {StatusLocked, StatusUnlocked},
	StatusUnlocked:   {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusError},
	StatusCompleted:  {StatusPending},
	StatusError:      {StatusPending},
}

// CanTransition reports whether a document may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Document represents one user-supplied file under active management.
// It owns Data until the bytes are handed to a transform.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Data       []byte    `json:"-"`
	PageCount  int       `json:"pageCount"`
	Locked     bool      `json:"locked"`
	Passphrase string    `json:"-"`
	Preview    []byte    `json:"-"`
	Status     Status    `json:"status"`
	Err        string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewDocument creates a pending document for the given file.
func NewDocument(name string, data []byte) *Document {
	return &Document{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		Status:    StatusPending,
		UpdatedAt: time.Now(),
	}
}

func (d *Document) transition(next Status) error {
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = time.Now()
	return nil
}

// MarkLocked records that the document needs a passphrase. A locked document
// always reports zero pages.
func (d *Document) MarkLocked() error {
	if err := d.transition(StatusLocked); err != nil {
		return err
	}
	d.Locked = true
	d.PageCount = 0
	d.Preview = nil
	return nil
}

// MarkUnlocked records a readable document. passphrase is empty for
// documents that were never encrypted.
func (d *Document) MarkUnlocked(pageCount int, passphrase string, preview []byte) error {
	if err := d.transition(StatusUnlocked); err != nil {
		return err
	}
	d.Locked = false
	d.PageCount = pageCount
	d.Passphrase = passphrase
	d.Preview = preview
	return nil
}

// MarkProcessing moves an unlocked document into a running transform.
func (d *Document) MarkProcessing() error {
	return d.transition(StatusProcessing)
}

// MarkCompleted finishes a successful transform.
func (d *Document) MarkCompleted() error {
	return d.transition(StatusCompleted)
}

// MarkFailed records a failed transform, or an unreadable file when called
// on a pending document.
func (d *Document) MarkFailed(cause error) error {
	if err := d.transition(StatusError); err != nil {
		return err
	}
	if cause != nil {
		d.Err = cause.Error()
	}
	return nil
}

// Resubmit returns a finished document to pending so it can be inspected
// and processed again.
func (d *Document) Resubmit() error {
	if err := d.transition(StatusPending); err != nil {
		return err
	}
	d.Err = ""
	d.Locked = false
	d.PageCount = 0
	d.Passphrase = ""
	d.Preview = nil
	return nil
}

// Input converts the document into a worker input with the given rotation.
func (d *Document) Input(rotation int) InputDocument {
	return InputDocument{
		Name:       d.Name,
		Data:       d.Data,
		Rotation:   rotation,
		Passphrase: d.Passphrase,
	}
}
