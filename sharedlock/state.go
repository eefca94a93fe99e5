package sharedlock

import (
	"context"
	"time"
)

// StateKind is a closed sum type describing a shared-lock row from one
// particular owner's point of view. Exactly one of the six values
// applies at any instant.
type StateKind int

const (
	// Unheld means the key is absent — neither a writer nor any readers
	// currently occupy it.
	Unheld StateKind = iota

	// HeldByMeAsReader means this owner currently holds a reader slot.
	HeldByMeAsReader

	// HeldByOthersAsReader means the key is in reader shape, this owner
	// does not hold a slot, and the slot table still has room.
	HeldByOthersAsReader

	// ReaderSlotsFull means the key is in reader shape, this owner does
	// not hold a slot, and the slot table is at its limit.
	ReaderSlotsFull

	// HeldByMeAsWriter means this owner currently holds writer
	// ownership.
	HeldByMeAsWriter

	// HeldByOthersAsWriter means another owner currently holds writer
	// ownership.
	HeldByOthersAsWriter
)

// String renders a StateKind for logging/debugging.
func (k StateKind) String() string {
	switch k {
	case Unheld:
		return "Unheld"
	case HeldByMeAsReader:
		return "HeldByMeAsReader"
	case HeldByOthersAsReader:
		return "HeldByOthersAsReader"
	case ReaderSlotsFull:
		return "ReaderSlotsFull"
	case HeldByMeAsWriter:
		return "HeldByMeAsWriter"
	case HeldByOthersAsWriter:
		return "HeldByOthersAsWriter"
	default:
		return "Unknown"
	}
}

// State is the projection GetState returns: the kind, plus whatever
// detail is meaningful for that kind.
type State struct {
	Kind StateKind

	// ReaderCount and ReaderLimit are populated whenever Kind is one of
	// the three reader-shape kinds.
	ReaderCount int
	ReaderLimit int

	// WriterExpiration is populated when Kind is HeldByMeAsWriter or
	// HeldByOthersAsWriter; nil means the writer never expires.
	WriterExpiration *time.Time
}

// GetState returns this owner's view of the key's current row.
func (s *SharedLock) GetState(ctx context.Context) (State, error) {
	row, err := s.adapter.GetState(ctx, s.key.String())
	if err != nil {
		return State{}, s.unexpected(ctx, "GetState", err)
	}
	if row == nil {
		return State{Kind: Unheld}, nil
	}

	if row.Writer != nil {
		kind := HeldByOthersAsWriter
		if row.Writer.Owner == s.ownerID {
			kind = HeldByMeAsWriter
		}
		return State{Kind: kind, WriterExpiration: row.Writer.Expiration}, nil
	}

	if row.Reader != nil {
		count := len(row.Reader.Slots)
		if _, mine := row.Reader.Slots[s.ownerID]; mine {
			return State{Kind: HeldByMeAsReader, ReaderCount: count, ReaderLimit: row.Reader.Limit}, nil
		}
		if row.Reader.Limit > 0 && count >= row.Reader.Limit {
			return State{Kind: ReaderSlotsFull, ReaderCount: count, ReaderLimit: row.Reader.Limit}, nil
		}
		return State{Kind: HeldByOthersAsReader, ReaderCount: count, ReaderLimit: row.Reader.Limit}, nil
	}

	return State{Kind: Unheld}, nil
}
