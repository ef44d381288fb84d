package graphdb

import "context"

// Executor is the transactional, statement-oriented batch executor the
// Batch Writer commits through.
type Executor interface {
	// RunWrite commits batch inside a single managed transaction. Either
	// every statement lands or none do.
	RunWrite(ctx context.Context, batch Batch) error
	// LastCommittedOffset queries the highest Transaction.offset currently
	// stored, for the Offset Tracker's resume point.
	LastCommittedOffset(ctx context.Context) (offset int64, found bool, err error)
	// ACSLoaded reports whether any from_acs Created node already exists.
	ACSLoaded(ctx context.Context) (bool, error)
	// EnsureIndexes creates the startup indexes if absent.
	EnsureIndexes(ctx context.Context) error
	// ClearManagedData deletes all nodes carrying a sync-managed label;
	// --fresh is scoped to this module's own labels.
	ClearManagedData(ctx context.Context) error
	Close(ctx context.Context) error
}

// managedLabels are the node labels this module owns and is willing to
// delete on --fresh.
var managedLabels = []string{"Transaction", "Created", "Exercised", "Party", "Reassignment"}
