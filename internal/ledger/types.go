// Package ledger holds the sync engine's domain model for the ledger side
// of the projection: updates, transactions, and events, independent of how
// they arrived over the wire (see internal/ledgerapi for that boundary).
package ledger

import "time"

// UpdateKind discriminates the closed LedgerUpdate sum type.
type UpdateKind int

const (
	UpdateKindTransaction UpdateKind = iota
	UpdateKindReassignment
	UpdateKindOffsetCheckpoint
)

// Update is one of TransactionUpdate, ReassignmentUpdate, OffsetCheckpoint.
type Update interface {
	Kind() UpdateKind
	Offset() int64
}

// TransactionUpdate carries an ordered list of events visible to the
// subscribing parties.
type TransactionUpdate struct {
	OffsetVal         int64
	UpdateID          string
	CommandID         string
	EffectiveAt       time.Time
	RecordTime        time.Time
	RequestingParties []string
	Events            []Event
}

func (t *TransactionUpdate) Kind() UpdateKind { return UpdateKindTransaction }
func (t *TransactionUpdate) Offset() int64    { return t.OffsetVal }

// ReassignmentUpdate moves a contract between synchronization domains. It
// carries a single synthetic event rather than a full event tree, treated
// as a specialised transaction.
type ReassignmentUpdate struct {
	OffsetVal         int64
	UpdateID          string
	RecordTime        time.Time
	RequestingParties []string
	Event             Event
}

func (r *ReassignmentUpdate) Kind() UpdateKind { return UpdateKindReassignment }
func (r *ReassignmentUpdate) Offset() int64    { return r.OffsetVal }

// OffsetCheckpoint carries no mutations; only its offset matters, which is
// forwarded straight to the Offset Tracker.
type OffsetCheckpoint struct {
	OffsetVal int64
}

func (o *OffsetCheckpoint) Kind() UpdateKind { return UpdateKindOffsetCheckpoint }
func (o *OffsetCheckpoint) Offset() int64    { return o.OffsetVal }

// EventKind discriminates the closed Event sum type.
type EventKind int

const (
	EventKindCreated EventKind = iota
	EventKindExercised
)

// Event is one of CreatedEvent, ExercisedEvent. NodeID is unique within the
// owning transaction.
type Event interface {
	Kind() EventKind
	NodeID() int32
	LastDescendantNodeID() int32
}

// CreatedEvent is a leaf event: LastDescendantNodeID always equals NodeID.
type CreatedEvent struct {
	NodeIDVal     int32
	ContractID    string
	TemplateName  string
	Signatories   []string
	Observers     []string
	Payload       []byte
	CreatedAt     time.Time
	FromACS       bool
}

func (c *CreatedEvent) Kind() EventKind           { return EventKindCreated }
func (c *CreatedEvent) NodeID() int32              { return c.NodeIDVal }
func (c *CreatedEvent) LastDescendantNodeID() int32 { return c.NodeIDVal }

// ExercisedEvent is an internal (or leaf) tree node spanning
// [NodeIDVal, LastDescendantNodeIDVal].
type ExercisedEvent struct {
	NodeIDVal              int32
	TargetContractID       string
	ChoiceName              string
	ActingParties           []string
	Consuming               bool
	LastDescendantNodeIDVal int32
	ChoiceArgument          []byte
	ExerciseResult          []byte
}

func (e *ExercisedEvent) Kind() EventKind           { return EventKindExercised }
func (e *ExercisedEvent) NodeID() int32              { return e.NodeIDVal }
func (e *ExercisedEvent) LastDescendantNodeID() int32 { return e.LastDescendantNodeIDVal }
