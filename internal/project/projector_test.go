package project

import (
	"strings"
	"testing"
	"time"

	"ledgersync/internal/ledger"
)

func newTx(offset int64, events []ledger.Event) *ledger.TransactionUpdate {
	return &ledger.TransactionUpdate{
		OffsetVal:         offset,
		UpdateID:          "u1",
		CommandID:         "c1",
		EffectiveAt:       time.Unix(0, 0).UTC(),
		RecordTime:        time.Unix(0, 0).UTC(),
		RequestingParties: []string{"alice"},
		Events:            events,
	}
}

// everyStatementIsMerge asserts the idempotence invariant: no
// Cypher clause in a projection may be a bare CREATE.
func everyStatementIsMerge(t *testing.T, cyphers []string) {
	t.Helper()
	for _, c := range cyphers {
		for _, line := range strings.Split(c, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "CREATE") {
				t.Fatalf("non-idempotent CREATE clause in projection: %q", line)
			}
		}
	}
}

func TestProjectTransactionIsIdempotent(t *testing.T) {
	events := []ledger.Event{
		&ledger.CreatedEvent{NodeIDVal: 0, ContractID: "c#0", TemplateName: "Iou"},
		&ledger.ExercisedEvent{NodeIDVal: 1, TargetContractID: "c#0", ChoiceName: "Transfer", LastDescendantNodeIDVal: 2, Consuming: true},
		&ledger.CreatedEvent{NodeIDVal: 2, ContractID: "c#2", TemplateName: "Iou"},
	}
	batch, err := Project(newTx(10, events))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	var cyphers []string
	for _, stmt := range batch {
		cyphers = append(cyphers, stmt.Cypher)
	}
	everyStatementIsMerge(t, cyphers)
}

func TestProjectTransactionActionEdgesOnlyForRoots(t *testing.T) {
	// Node 1 (Exercised, [1,2]) is the sole root; node 2 is its consequence.
	events := []ledger.Event{
		&ledger.ExercisedEvent{NodeIDVal: 1, ChoiceName: "Transfer", LastDescendantNodeIDVal: 2},
		&ledger.CreatedEvent{NodeIDVal: 2, ContractID: "c#2", TemplateName: "Iou"},
	}
	batch, err := Project(newTx(5, events))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	var sawExercisedAction, sawCreatedAction bool
	for _, stmt := range batch {
		if strings.Contains(stmt.Cypher, "(ex:Exercised") && strings.Contains(stmt.Cypher, "ACTION") {
			sawExercisedAction = true
		}
		if strings.Contains(stmt.Cypher, "(c:Created") && strings.Contains(stmt.Cypher, "ACTION") {
			sawCreatedAction = true
		}
	}
	if !sawExercisedAction {
		t.Errorf("expected an ACTION edge statement for the root Exercised node")
	}
	if sawCreatedAction {
		t.Errorf("did not expect an ACTION edge statement for the non-root Created node")
	}
}

func TestProjectTransactionConsequenceEdgeCount(t *testing.T) {
	events := []ledger.Event{
		&ledger.ExercisedEvent{NodeIDVal: 0, ChoiceName: "Top", LastDescendantNodeIDVal: 3},
		&ledger.ExercisedEvent{NodeIDVal: 1, ChoiceName: "Mid", LastDescendantNodeIDVal: 2},
		&ledger.CreatedEvent{NodeIDVal: 2, ContractID: "c#2", TemplateName: "Iou"},
		&ledger.CreatedEvent{NodeIDVal: 3, ContractID: "c#3", TemplateName: "Iou"},
	}
	batch, err := Project(newTx(1, events))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	var found bool
	for _, stmt := range batch {
		if strings.Contains(stmt.Cypher, "CONSEQUENCE") {
			found = true
			edges, ok := stmt.Params["edges"].([]map[string]any)
			if !ok {
				t.Fatalf("expected edges param to be []map[string]any, got %T", stmt.Params["edges"])
			}
			if len(edges) != 3 {
				t.Errorf("expected 3 consequence edges (0->1, 1->2, 0->3), got %d", len(edges))
			}
		}
	}
	if !found {
		t.Fatalf("expected a CONSEQUENCE edge statement")
	}
}

func TestProjectCheckpointHasNoMutations(t *testing.T) {
	batch, err := Project(&ledger.OffsetCheckpoint{OffsetVal: 42})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("expected no mutations for a checkpoint update, got %d statements", len(batch))
	}
}

func TestActiveContractTagsFromACS(t *testing.T) {
	batch := ActiveContract(&ledger.CreatedEvent{ContractID: "c#9", TemplateName: "Iou"})
	if len(batch) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(batch))
	}
	if !strings.Contains(batch[0].Cypher, "from_acs = true") {
		t.Errorf("expected ActiveContract to tag the node from_acs, got: %s", batch[0].Cypher)
	}
}

func TestProjectReassignmentUsesOwnLabel(t *testing.T) {
	batch, err := Project(&ledger.ReassignmentUpdate{
		OffsetVal:         7,
		UpdateID:          "r1",
		RecordTime:        time.Unix(0, 0).UTC(),
		RequestingParties: []string{"bob"},
		Event:             &ledger.CreatedEvent{NodeIDVal: 0, ContractID: "c#7", TemplateName: "Iou"},
	})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	var sawReassignment, sawRequestedOnReassignment bool
	for _, stmt := range batch {
		if strings.Contains(stmt.Cypher, "Reassignment") {
			sawReassignment = true
		}
		if strings.Contains(stmt.Cypher, "REQUESTED") {
			if !strings.Contains(stmt.Cypher, "(t:Reassignment") {
				t.Errorf("expected the REQUESTED edge to match a Reassignment node, got: %s", stmt.Cypher)
			}
			sawRequestedOnReassignment = true
		}
	}
	if !sawReassignment {
		t.Errorf("expected a Reassignment-labelled node in the batch")
	}
	if !sawRequestedOnReassignment {
		t.Errorf("expected a REQUESTED edge statement for bob")
	}
}
