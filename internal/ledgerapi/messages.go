// Package ledgerapi is the wire-level transport boundary to the ledger
// participant: it dials the streaming endpoint, attaches the bearer token,
// and frames/deframes update messages. It stands in for the generated
// ledger-API client bindings, treated elsewhere as a lazy sequence of
// LedgerUpdate values — the rest of the engine never holds a grpc
// connection, only the interfaces declared here (internal/ledger imports
// grpc's codes and status packages solely to classify errors).
package ledgerapi

// EventMessage is the wire shape of one transaction event. Created and
// Exercised are mutually exclusive; exactly one is set.
type EventMessage struct {
	NodeID int32 `json:"node_id"`

	Created   *CreatedMessage   `json:"created,omitempty"`
	Exercised *ExercisedMessage `json:"exercised,omitempty"`
}

// CreatedMessage is the wire shape of a Created event.
type CreatedMessage struct {
	ContractID   string   `json:"contract_id"`
	TemplateName string   `json:"template_name"`
	Signatories  []string `json:"signatories"`
	Observers    []string `json:"observers"`
	Payload      []byte   `json:"payload"`
	CreatedAtUTC int64    `json:"created_at_utc"`
}

// ExercisedMessage is the wire shape of an Exercised event.
type ExercisedMessage struct {
	TargetContractID      string   `json:"target_contract_id"`
	ChoiceName            string   `json:"choice_name"`
	ActingParties         []string `json:"acting_parties"`
	Consuming             bool     `json:"consuming"`
	LastDescendantNodeID  int32    `json:"last_descendant_node_id"`
	ChoiceArgument        []byte   `json:"choice_argument"`
	ExerciseResult        []byte   `json:"exercise_result"`
}

// TransactionMessage is the wire shape of a TransactionUpdate.
type TransactionMessage struct {
	Offset            int64          `json:"offset"`
	UpdateID          string         `json:"update_id"`
	CommandID         string         `json:"command_id"`
	EffectiveAtUTC    int64          `json:"effective_at_utc"`
	RecordTimeUTC     int64          `json:"record_time_utc"`
	RequestingParties []string       `json:"requesting_parties"`
	Events            []EventMessage `json:"events"`
}

// ReassignmentMessage is the wire shape of a ReassignmentUpdate.
type ReassignmentMessage struct {
	Offset            int64        `json:"offset"`
	UpdateID          string       `json:"update_id"`
	RecordTimeUTC     int64        `json:"record_time_utc"`
	RequestingParties []string     `json:"requesting_parties"`
	Event             EventMessage `json:"event"`
}

// CheckpointMessage is the wire shape of an OffsetCheckpoint.
type CheckpointMessage struct {
	Offset int64 `json:"offset"`
}

// UpdateMessage is the envelope returned by the GetUpdates stream: exactly
// one of the three fields is set.
type UpdateMessage struct {
	Transaction  *TransactionMessage  `json:"transaction,omitempty"`
	Reassignment *ReassignmentMessage `json:"reassignment,omitempty"`
	Checkpoint   *CheckpointMessage   `json:"checkpoint,omitempty"`
}

// GetUpdatesRequest parameterises the update subscription.
type GetUpdatesRequest struct {
	Parties        []string `json:"parties"`
	BeginExclusive int64    `json:"begin_exclusive"`
	EndInclusive   *int64   `json:"end_inclusive,omitempty"`
}

// GetActiveContractsRequest parameterises the ACS snapshot query.
type GetActiveContractsRequest struct {
	Parties       []string `json:"parties"`
	ActiveAtOffset int64   `json:"active_at_offset"`
}

// ActiveContractMessage is one entry in the ACS snapshot stream.
type ActiveContractMessage struct {
	Created CreatedMessage `json:"created"`
}

// GetLedgerEndResponse carries the current ledger end offset.
type GetLedgerEndResponse struct {
	Offset int64 `json:"offset"`
}

// GetLatestPrunedOffsetsResponse carries the inclusive pruning boundary.
type GetLatestPrunedOffsetsResponse struct {
	ParticipantPrunedUpToInclusive int64 `json:"participant_pruned_up_to_inclusive"`
}
