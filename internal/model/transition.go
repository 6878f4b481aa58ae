package model

import (
	"fmt"
	"time"
)

// FiscalStatus is the lifecycle status of a fiscal document.
type FiscalStatus string

const (
	FiscalPending        FiscalStatus = "PENDING"
	FiscalOfflinePending FiscalStatus = "OFFLINE_PENDING"
	FiscalSent           FiscalStatus = "SENT"
	FiscalAccepted       FiscalStatus = "ACCEPTED"
	FiscalRejected       FiscalStatus = "REJECTED"
	FiscalFailed         FiscalStatus = "FAILED"
)

// fiscalTransitions lists the statuses reachable from each status.
// ACCEPTED and REJECTED loop onto themselves so redelivered webhooks stay idempotent.
// FAILED is terminal: the provider never received the document.
var fiscalTransitions = map[FiscalStatus][]FiscalStatus{
	FiscalPending:        {FiscalOfflinePending, FiscalSent, FiscalFailed},
	FiscalOfflinePending: {FiscalSent, FiscalFailed, FiscalAccepted, FiscalRejected},
	FiscalSent:           {FiscalAccepted, FiscalRejected},
	FiscalAccepted:       {FiscalAccepted},
	FiscalRejected:       {FiscalRejected},
	FiscalFailed:         {},
}

// CanTransitionTo reports whether next is reachable from s.
func (s FiscalStatus) CanTransitionTo(next FiscalStatus) bool {
	for _, allowed := range fiscalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Settled reports whether the tax authority already decided on the document.
func (s FiscalStatus) Settled() bool {
	return s == FiscalAccepted || s == FiscalRejected
}

// Delivered reports whether the provider has already received the document.
func (s FiscalStatus) Delivered() bool {
	return s == FiscalSent || s.Settled()
}

// TransitionError is returned when a status change is not allowed.
type TransitionError struct {
	DocumentID string
	From       FiscalStatus
	To         FiscalStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("fiscal document %s: illegal transition %s -> %s", e.DocumentID, e.From, e.To)
}

// TransitionTo moves the document to next, leaving it untouched when the move is illegal.
func (d *FiscalDocument) TransitionTo(next FiscalStatus, now time.Time) error {
	if !d.Status.CanTransitionTo(next) {
		return &TransitionError{DocumentID: d.ID, From: d.Status, To: next}
	}
	d.Status = next
	d.UpdatedAt = now.UTC()
	return nil
}

// MaxErrorDetailLength bounds FiscalDocument.ErrorDetail.
const MaxErrorDetailLength = 255

// TruncateDetail cuts s to MaxErrorDetailLength runes.
func TruncateDetail(s string) string {
	r := []rune(s)
	if len(r) <= MaxErrorDetailLength {
		return s
	}
	return string(r[:MaxErrorDetailLength])
}

// MarkSent records the provider acknowledgement. Blank values keep what is already stored.
func (d *FiscalDocument) MarkSent(provider, trackID, number string, now time.Time) error {
	if err := d.TransitionTo(FiscalSent, now); err != nil {
		return err
	}
	if provider != "" {
		d.Provider = provider
	}
	if trackID != "" {
		d.TrackID = trackID
	}
	if number != "" {
		d.Number = number
	}
	d.Offline = false
	d.ErrorDetail = ""
	at := now.UTC()
	d.LastSyncAt = &at
	return nil
}

// MarkFailed moves the document to FAILED with a display-safe detail.
func (d *FiscalDocument) MarkFailed(detail string, now time.Time) error {
	if err := d.TransitionTo(FiscalFailed, now); err != nil {
		return err
	}
	d.ErrorDetail = TruncateDetail(detail)
	at := now.UTC()
	d.LastSyncAt = &at
	return nil
}
