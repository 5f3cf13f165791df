package requirement

import (
	"encoding/json"
	"fmt"
	"time"
)

// Key identifies one mandatory fact the conversation must collect.
type Key string

const (
	KeyIdentity           Key = "identity"
	KeyDimensions         Key = "dimensions"
	KeyBudget             Key = "budget"
	KeyInstallationMethod Key = "installation_method"
	KeyTimeline           Key = "timeline"
	KeyProductSelected    Key = "product_selected"
)

// canonicalOrder is the tie-break order used by Missing and, through it, by
// the question policy. product_selected is tracked but is not part of the
// mandatory question set.
var canonicalOrder = []Key{
	KeyIdentity,
	KeyDimensions,
	KeyBudget,
	KeyInstallationMethod,
	KeyTimeline,
}

// MandatoryKeys returns the five facts gating needs-assessment completeness,
// in canonical order.
func MandatoryKeys() []Key {
	out := make([]Key, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

// ErrInvalidKey is returned when a requirement key is not recognised.
var ErrInvalidKey = fmt.Errorf("invalid requirement key")

func validKey(k Key) bool {
	switch k {
	case KeyIdentity, KeyDimensions, KeyBudget, KeyInstallationMethod, KeyTimeline, KeyProductSelected:
		return true
	}
	return false
}

// Entry is the recorded state of one requirement.
type Entry struct {
	Filled    bool      `json:"filled"`
	Value     string    `json:"value,omitempty"`
	FilledAt  time.Time `json:"filled_at,omitempty"`
	Revisions int       `json:"revisions,omitempty"`
}

// Ledger tracks which mandatory facts have been extracted so far. A value
// transitions unfilled -> filled once; refilling requires an explicit
// revision. Not safe for concurrent use; a session is single-threaded.
type Ledger struct {
	entries map[Key]Entry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[Key]Entry)}
}

// RecordResult reports what a Record call did.
type RecordResult struct {
	// Value is the value now stored for the key. When the record was a
	// no-op this is the previously stored value.
	Value string
	// Updated is false when the key was already filled and revision was
	// not allowed.
	Updated bool
}

// Record fills a requirement. Unknown keys fail with ErrInvalidKey. Filling
// an already-filled key is a no-op returning the prior value unless
// allowRevision is set, in which case the value is overwritten and the
// revision counted.
func (l *Ledger) Record(key Key, value string, allowRevision bool) (RecordResult, error) {
	if !validKey(key) {
		return RecordResult{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cur, ok := l.entries[key]
	if ok && cur.Filled {
		if !allowRevision {
			return RecordResult{Value: cur.Value, Updated: false}, nil
		}
		l.entries[key] = Entry{Filled: true, Value: value, FilledAt: time.Now().UTC(), Revisions: cur.Revisions + 1}
		return RecordResult{Value: value, Updated: true}, nil
	}
	// cur.Revisions survives an invalidate -> refill cycle.
	l.entries[key] = Entry{Filled: true, Value: value, FilledAt: time.Now().UTC(), Revisions: cur.Revisions}
	return RecordResult{Value: value, Updated: true}, nil
}

// Invalidate clears a filled requirement. This is the explicit revision event
// for the case where the customer withdraws a fact (e.g. restates the room
// size) and the new value is not yet known.
func (l *Ledger) Invalidate(key Key) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cur, ok := l.entries[key]
	if !ok || !cur.Filled {
		return nil
	}
	l.entries[key] = Entry{Filled: false, Revisions: cur.Revisions + 1}
	return nil
}

// Get returns the entry for a key. The zero Entry is returned for keys never
// recorded.
func (l *Ledger) Get(key Key) (Entry, bool) {
	e, ok := l.entries[key]
	return e, ok && e.Filled
}

// Missing returns the unfilled mandatory keys in canonical order.
func (l *Ledger) Missing() []Key {
	var out []Key
	for _, k := range canonicalOrder {
		if e, ok := l.entries[k]; !ok || !e.Filled {
			out = append(out, k)
		}
	}
	return out
}

// IsFilled reports whether a single key has been collected.
func (l *Ledger) IsFilled(key Key) bool {
	e, ok := l.entries[key]
	return ok && e.Filled
}

// IsComplete reports whether every key in the subset is filled.
func (l *Ledger) IsComplete(keys ...Key) bool {
	for _, k := range keys {
		if !l.IsFilled(k) {
			return false
		}
	}
	return true
}

// Reset clears every entry. Used only by the explicit session reset path.
func (l *Ledger) Reset() {
	l.entries = make(map[Key]Entry)
}

// MarshalJSON serialises the ledger as a plain key -> entry map so session
// checkpoints stay readable.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.entries)
}

func (l *Ledger) UnmarshalJSON(b []byte) error {
	m := make(map[Key]Entry)
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	l.entries = m
	return nil
}
