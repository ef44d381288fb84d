package graphdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jExecutor commits batches over Bolt using the official driver. One
// session is opened per operation; the driver pools the underlying
// connections, so this stays cheap under an "exactly one in-flight
// transaction" resource policy.
type Neo4jExecutor struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jExecutor connects to uri with basic auth. It does not verify
// connectivity itself; callers that want a fail-fast startup check should
// call EnsureIndexes immediately after, which requires a live session.
func NewNeo4jExecutor(uri, user, password string) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Neo4jExecutor{driver: driver}, nil
}

func (e *Neo4jExecutor) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return e.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
}

// RunWrite commits every statement in batch inside one managed
// transaction: neo4j.ExecuteWrite retries the whole unit of work on
// transient failures per the driver's own policy, then surfaces a
// persistent failure so the Batch Writer can apply its own retry
// escalation on top.
func (e *Neo4jExecutor) RunWrite(ctx context.Context, batch Batch) error {
	if len(batch) == 0 {
		return nil
	}
	session := e.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range batch {
			if _, err := tx.Run(ctx, stmt.Cypher, stmt.Params); err != nil {
				return nil, fmt.Errorf("run statement: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (e *Neo4jExecutor) LastCommittedOffset(ctx context.Context) (int64, bool, error) {
	session := e.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Transaction) RETURN max(t.offset) AS offset", nil)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return record.Values[0], nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("query last offset: %w", err)
	}
	if result == nil {
		return 0, false, nil
	}
	offset, ok := result.(int64)
	if !ok {
		return 0, false, nil
	}
	return offset, true, nil
}

func (e *Neo4jExecutor) ACSLoaded(ctx context.Context) (bool, error) {
	session := e.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (c:Created {from_acs: true}) RETURN count(c) AS count LIMIT 1", nil)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return record.Values[0], nil
	})
	if err != nil {
		return false, fmt.Errorf("query acs loaded: %w", err)
	}
	count, _ := result.(int64)
	return count > 0, nil
}

func (e *Neo4jExecutor) EnsureIndexes(ctx context.Context) error {
	session := e.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range indexStatements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure index (%s): %w", stmt, err)
		}
	}
	return nil
}

// ClearManagedData deletes only the labels this module owns, favoring a
// safer, narrower deletion that lets it coexist with unrelated graph
// content in the same database.
func (e *Neo4jExecutor) ClearManagedData(ctx context.Context) error {
	session := e.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	labelMatch := "n:" + strings.Join(managedLabels, " OR n:")
	cypher := fmt.Sprintf("MATCH (n) WHERE %s DETACH DELETE n", labelMatch)
	if _, err := session.Run(ctx, cypher, nil); err != nil {
		return fmt.Errorf("clear managed data: %w", err)
	}
	return nil
}

func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}
