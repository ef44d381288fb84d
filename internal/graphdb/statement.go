// Package graphdb is the wire-level transport boundary to the graph store:
// it opens Bolt sessions and runs parameterised Cypher statements inside
// managed transactions. Everything upstream of this package only depends
// on Executor, never on the neo4j driver directly.
package graphdb

import "fmt"

// Statement is one parameterised Cypher write, the Go analogue of the
// original ledger-explorer's CypherQuery.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Batch is an ordered set of statements meant to commit in a single
// transaction.
type Batch []Statement

func (b Batch) String() string {
	return fmt.Sprintf("Batch(%d statements)", len(b))
}
