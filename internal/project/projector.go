// Package project maps one ledger.Update into the graph mutations that
// realise it: a Transaction node, Created/Exercised nodes,
// Party nodes, and the ACTION/CONSEQUENCE/TARGET/CONSUMES/REQUESTED edges
// between them. Every write is a MERGE keyed on the node's identity so
// replaying an already-projected update is a no-op.
package project

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"ledgersync/internal/graphdb"
	"ledgersync/internal/ledger"
	"ledgersync/internal/tree"
)

// Project turns one ledger.Update into the graph mutations that realise
// it. OffsetCheckpoint updates carry no mutations; the caller is expected
// to forward their offset to the Offset Tracker directly.
func Project(update ledger.Update) (graphdb.Batch, error) {
	switch u := update.(type) {
	case *ledger.TransactionUpdate:
		return projectTransaction(u), nil
	case *ledger.ReassignmentUpdate:
		return projectReassignment(u), nil
	case *ledger.OffsetCheckpoint:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown update type %T", update)
	}
}

// ActiveContract turns one ACS snapshot entry into a Created-node upsert,
// tagged from_acs so the Stream Driver can tell whether the ACS has
// already been loaded on restart. ACS contracts have no owning
// transaction: offset is the -1 sentinel and node_id is 0.
func ActiveContract(ev *ledger.CreatedEvent) graphdb.Batch {
	return graphdb.Batch{
		{
			Cypher: `MERGE (c:Created {contract_id: $contract_id})
ON CREATE SET
	c.template_name = $template_name,
	c.signatories = $signatories,
	c.observers = $observers,
	c.payload = $payload,
	c.created_at = $created_at,
	c.offset = -1,
	c.node_id = 0,
	c.from_acs = true`,
			Params: map[string]any{
				"contract_id":   ev.ContractID,
				"template_name": ev.TemplateName,
				"signatories":   ev.Signatories,
				"observers":     ev.Observers,
				"payload":       hexutil.Encode(ev.Payload),
				"created_at":    ev.CreatedAt.Format(timeFormat),
			},
		},
	}
}

const timeFormat = "2006-01-02T15:04:05Z"

func projectTransaction(tx *ledger.TransactionUpdate) graphdb.Batch {
	var batch graphdb.Batch

	batch = append(batch, graphdb.Statement{
		Cypher: `MERGE (t:Transaction {offset: $offset})
ON CREATE SET
	t.update_id = $update_id,
	t.command_id = $command_id,
	t.effective_at = $effective_at,
	t.record_time = $record_time`,
		Params: map[string]any{
			"offset":       tx.OffsetVal,
			"update_id":    tx.UpdateID,
			"command_id":   tx.CommandID,
			"effective_at": tx.EffectiveAt.Format(timeFormat),
			"record_time":  tx.RecordTime.Format(timeFormat),
		},
	})

	markers := make([]tree.Marker, 0, len(tx.Events))
	for _, ev := range tx.Events {
		markers = append(markers, tree.Marker{NodeID: ev.NodeID(), LastDescendant: ev.LastDescendantNodeID()})
	}
	decoded := tree.Decode(markers)

	roots := make(map[int32]bool, len(decoded.Roots))
	for _, r := range decoded.Roots {
		roots[r] = true
	}

	batch = append(batch, eventNodeStatements(tx.OffsetVal, tx.Events)...)
	batch = append(batch, consequenceEdgeStatements(tx.OffsetVal, decoded.Edges)...)
	batch = append(batch, targetAndConsumesStatements(tx.OffsetVal, tx.Events)...)
	batch = append(batch, actionEdgeStatements(tx.OffsetVal, tx.Events, roots)...)
	batch = append(batch, partyStatements(tx.OffsetVal, tx.RequestingParties, "Transaction")...)

	return batch
}

// projectReassignment treats the reassignment as a single-event
// transaction under its own Reassignment label rather than reusing the
// Transaction label.
func projectReassignment(r *ledger.ReassignmentUpdate) graphdb.Batch {
	batch := graphdb.Batch{
		{
			Cypher: `MERGE (t:Reassignment {offset: $offset})
ON CREATE SET
	t.update_id = $update_id,
	t.record_time = $record_time`,
			Params: map[string]any{
				"offset":      r.OffsetVal,
				"update_id":   r.UpdateID,
				"record_time": r.RecordTime.Format(timeFormat),
			},
		},
	}
	batch = append(batch, eventNodeStatements(r.OffsetVal, []ledger.Event{r.Event})...)
	batch = append(batch, graphdb.Statement{
		Cypher: `MATCH (t:Reassignment {offset: $offset}), (n {offset: $offset, node_id: $node_id})
MERGE (t)-[:ACTION]->(n)`,
		Params: map[string]any{"offset": r.OffsetVal, "node_id": r.Event.NodeID()},
	})
	batch = append(batch, targetAndConsumesStatements(r.OffsetVal, []ledger.Event{r.Event})...)
	batch = append(batch, partyStatements(r.OffsetVal, r.RequestingParties, "Reassignment")...)
	return batch
}

func eventNodeStatements(offset int64, events []ledger.Event) graphdb.Batch {
	var created []map[string]any
	var exercised []map[string]any

	for _, ev := range events {
		switch e := ev.(type) {
		case *ledger.CreatedEvent:
			created = append(created, map[string]any{
				"offset":        offset,
				"node_id":       e.NodeIDVal,
				"contract_id":   e.ContractID,
				"template_name": e.TemplateName,
				"signatories":   e.Signatories,
				"observers":     e.Observers,
				"payload":       hexutil.Encode(e.Payload),
				"created_at":    e.CreatedAt.Format(timeFormat),
			})
		case *ledger.ExercisedEvent:
			exercised = append(exercised, map[string]any{
				"offset":                  offset,
				"node_id":                 e.NodeIDVal,
				"choice_name":             e.ChoiceName,
				"target_contract_id":      e.TargetContractID,
				"acting_parties":          e.ActingParties,
				"consuming":               e.Consuming,
				"last_descendant_node_id": e.LastDescendantNodeIDVal,
				"choice_argument":         hexutil.Encode(e.ChoiceArgument),
			})
		}
	}

	var batch graphdb.Batch
	if len(created) > 0 {
		batch = append(batch, graphdb.Statement{
			Cypher: `UNWIND $events AS e
MERGE (c:Created {offset: e.offset, node_id: e.node_id})
ON CREATE SET
	c.contract_id = e.contract_id,
	c.template_name = e.template_name,
	c.signatories = e.signatories,
	c.observers = e.observers,
	c.payload = e.payload,
	c.created_at = e.created_at`,
			Params: map[string]any{"events": created},
		})
	}
	if len(exercised) > 0 {
		batch = append(batch, graphdb.Statement{
			Cypher: `UNWIND $events AS e
MERGE (ex:Exercised {offset: e.offset, node_id: e.node_id})
ON CREATE SET
	ex.choice_name = e.choice_name,
	ex.target_contract_id = e.target_contract_id,
	ex.acting_parties = e.acting_parties,
	ex.consuming = e.consuming,
	ex.last_descendant_node_id = e.last_descendant_node_id,
	ex.choice_argument = e.choice_argument`,
			Params: map[string]any{"events": exercised},
		})
	}
	return batch
}

func consequenceEdgeStatements(offset int64, edges []tree.Edge) graphdb.Batch {
	if len(edges) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{"offset": offset, "parent_id": e.Parent, "child_id": e.Child})
	}
	return graphdb.Batch{{
		Cypher: `UNWIND $edges AS e
MATCH (parent {offset: e.offset, node_id: e.parent_id}), (child {offset: e.offset, node_id: e.child_id})
MERGE (parent)-[:CONSEQUENCE]->(child)`,
		Params: map[string]any{"edges": rows},
	}}
}

func targetAndConsumesStatements(offset int64, events []ledger.Event) graphdb.Batch {
	var targets []map[string]any
	var consumes []map[string]any

	for _, ev := range events {
		e, ok := ev.(*ledger.ExercisedEvent)
		if !ok || e.TargetContractID == "" {
			continue
		}
		row := map[string]any{"offset": offset, "node_id": e.NodeIDVal, "target_contract_id": e.TargetContractID}
		targets = append(targets, row)
		if e.Consuming {
			consumes = append(consumes, row)
		}
	}

	var batch graphdb.Batch
	if len(targets) > 0 {
		batch = append(batch, graphdb.Statement{
			Cypher: `UNWIND $rels AS r
MATCH (e:Exercised {offset: r.offset, node_id: r.node_id}), (c:Created {contract_id: r.target_contract_id})
MERGE (e)-[:TARGET]->(c)`,
			Params: map[string]any{"rels": targets},
		})
	}
	if len(consumes) > 0 {
		batch = append(batch, graphdb.Statement{
			Cypher: `UNWIND $rels AS r
MATCH (e:Exercised {offset: r.offset, node_id: r.node_id}), (c:Created {contract_id: r.target_contract_id})
MERGE (e)-[:CONSUMES]->(c)`,
			Params: map[string]any{"rels": consumes},
		})
	}
	return batch
}

func actionEdgeStatements(offset int64, events []ledger.Event, roots map[int32]bool) graphdb.Batch {
	var createdRoots []map[string]any
	var exercisedRoots []map[string]any

	for _, ev := range events {
		if !roots[ev.NodeID()] {
			continue
		}
		row := map[string]any{"offset": offset, "node_id": ev.NodeID()}
		switch ev.(type) {
		case *ledger.CreatedEvent:
			createdRoots = append(createdRoots, row)
		case *ledger.ExercisedEvent:
			exercisedRoots = append(exercisedRoots, row)
		}
	}

	var batch graphdb.Batch
	if len(createdRoots) > 0 {
		batch = append(batch, graphdb.Statement{
			Cypher: `UNWIND $rels AS r
MATCH (t:Transaction {offset: r.offset}), (c:Created {offset: r.offset, node_id: r.node_id})
MERGE (t)-[:ACTION]->(c)`,
			Params: map[string]any{"rels": createdRoots},
		})
	}
	if len(exercisedRoots) > 0 {
		batch = append(batch, graphdb.Statement{
			Cypher: `UNWIND $rels AS r
MATCH (t:Transaction {offset: r.offset}), (ex:Exercised {offset: r.offset, node_id: r.node_id})
MERGE (t)-[:ACTION]->(ex)`,
			Params: map[string]any{"rels": exercisedRoots},
		})
	}
	return batch
}

// partyStatements upserts Party nodes and their REQUESTED edge to the
// owning update node. ownerLabel must match whichever label
// projectTransaction/projectReassignment gave that node (Transaction or
// Reassignment) so the MATCH actually finds it.
func partyStatements(offset int64, parties []string, ownerLabel string) graphdb.Batch {
	if len(parties) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(parties))
	for _, p := range parties {
		rows = append(rows, map[string]any{"party_id": p, "offset": offset})
	}
	return graphdb.Batch{
		{
			Cypher: `UNWIND $parties AS p
MERGE (:Party {party_id: p.party_id})`,
			Params: map[string]any{"parties": rows},
		},
		{
			Cypher: fmt.Sprintf(`UNWIND $parties AS p
MATCH (party:Party {party_id: p.party_id}), (t:%s {offset: p.offset})
MERGE (party)-[:REQUESTED]->(t)`, ownerLabel),
			Params: map[string]any{"parties": rows},
		},
	}
}
