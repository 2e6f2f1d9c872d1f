package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/franz/asset-vault/internal/util"
)

// Every recursive walk below stops at depth 100 so malformed data cannot
// loop forever.

// reachesSQL yields a row when the second argument is reachable from the
// first by following edges forward.
const reachesSQL = `
	WITH RECURSIVE reach(id, depth) AS (
		SELECT ?, 0
		UNION
		SELECT d.depends_on, r.depth + 1
		FROM dependencies d JOIN reach r ON d.asset_id = r.id
		WHERE r.depth < 100
	)
	SELECT COUNT(*) FROM reach WHERE id = ?`

const allDependenciesSQL = `
	WITH RECURSIVE deps(id, depth) AS (
		SELECT depends_on, 1 FROM dependencies WHERE asset_id = ?
		UNION
		SELECT d.depends_on, deps.depth + 1
		FROM dependencies d JOIN deps ON d.asset_id = deps.id
		WHERE deps.depth < 100
	)
	SELECT DISTINCT id FROM deps WHERE id <> ? ORDER BY id`

const dependentsSQL = `
	WITH RECURSIVE users(id, depth) AS (
		SELECT asset_id, 1 FROM dependencies WHERE depends_on = ?
		UNION
		SELECT d.asset_id, users.depth + 1
		FROM dependencies d JOIN users ON d.depends_on = users.id
		WHERE users.depth < 100
	)
	SELECT DISTINCT id FROM users WHERE id <> ? ORDER BY id`

// The guard column holds every ID on the current path between unit
// separators so a node is never revisited along one branch.
const dependencyGraphSQL = `
	WITH RECURSIVE tree(asset_id, parent, level, path, guard) AS (
		SELECT ?, NULL, 0, ?, char(31) || ? || char(31)
		UNION ALL
		SELECT d.depends_on, t.asset_id, t.level + 1,
			t.path || ' -> ' || d.depends_on,
			t.guard || d.depends_on || char(31)
		FROM dependencies d JOIN tree t ON d.asset_id = t.asset_id
		WHERE t.level < 100
			AND instr(t.guard, char(31) || d.depends_on || char(31)) = 0
	)
	SELECT asset_id, COALESCE(parent, '') AS parent, level, path
	FROM tree
	ORDER BY level, path`

// AddDependency records that asset a requires asset b. Both must exist and
// the edge must not close a cycle; rejected edges leave the graph untouched.
// Adding an existing edge is a no-op.
func (s *Store) AddDependency(ctx context.Context, a, b string) error {
	op := fmt.Sprintf("add dependency %s -> %s", a, b)
	return s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		for _, id := range []string{a, b} {
			exists, err := s.assetExists(ctx, tx, id)
			if err != nil {
				return err
			}
			if !exists {
				return opErr(op, ErrValidationFailed, fmt.Errorf("asset %s does not exist", id))
			}
		}

		if a == b {
			return opErr(op, ErrCircularDependency, fmt.Errorf("asset %s cannot depend on itself", a))
		}

		// a -> b closes a cycle exactly when b already reaches a
		var reaches int
		if err := s.get(ctx, tx, &reaches, reachesSQL, b, a); err != nil {
			return fmt.Errorf("failed to check for cycles: %w", err)
		}
		if reaches > 0 {
			return opErr(op, ErrCircularDependency, fmt.Errorf("%s already depends on %s", b, a))
		}

		_, err := s.exec(ctx, tx,
			"INSERT OR IGNORE INTO dependencies (asset_id, depends_on, created_at) VALUES (?, ?, ?)",
			a, b, s.now().Unix())
		if err != nil {
			return fmt.Errorf("failed to insert dependency: %w", err)
		}
		return nil
	})
}

// RemoveDependency deletes the edge a -> b if present
func (s *Store) RemoveDependency(ctx context.Context, a, b string) error {
	op := fmt.Sprintf("remove dependency %s -> %s", a, b)
	return s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		_, err := s.exec(ctx, tx, "DELETE FROM dependencies WHERE asset_id = ? AND depends_on = ?", a, b)
		return err
	})
}

// GetAllDependencies returns every asset id transitively depends on
func (s *Store) GetAllDependencies(ctx context.Context, id string) ([]string, error) {
	return s.traverse(ctx, "get all dependencies "+id, allDependenciesSQL, id, id)
}

// GetDirectDependencies returns the assets id depends on directly
func (s *Store) GetDirectDependencies(ctx context.Context, id string) ([]string, error) {
	return s.traverse(ctx, "get direct dependencies "+id,
		"SELECT depends_on FROM dependencies WHERE asset_id = ? ORDER BY depends_on", id)
}

// GetDependents returns every asset that transitively depends on id
func (s *Store) GetDependents(ctx context.Context, id string) ([]string, error) {
	return s.traverse(ctx, "get dependents "+id, dependentsSQL, id, id)
}

func (s *Store) traverse(ctx context.Context, op, query string, args ...any) ([]string, error) {
	start := time.Now()
	ids := []string{}
	err := s.withConn(ctx, op, func(c *PooledConn) error {
		return s.selectAll(ctx, c, &ids, query, args...)
	})
	if err != nil {
		return nil, err
	}
	util.DebugLog("%s: %d assets in %v", op, len(ids), time.Since(start))
	return ids, nil
}

// GetDependencyGraph returns the leveled dependency tree rooted at id
func (s *Store) GetDependencyGraph(ctx context.Context, id string) (*DependencyGraph, error) {
	op := "get dependency graph " + id
	graph := &DependencyGraph{RootID: id, Nodes: []DependencyNode{}}

	err := s.withConn(ctx, op, func(c *PooledConn) error {
		exists, err := s.assetExists(ctx, c, id)
		if err != nil {
			return err
		}
		if !exists {
			return opErr(op, ErrValidationFailed, fmt.Errorf("asset %s does not exist", id))
		}
		return s.selectAll(ctx, c, &graph.Nodes, dependencyGraphSQL, id, id, id)
	})
	if err != nil {
		return nil, err
	}

	for _, n := range graph.Nodes {
		if n.Level > graph.MaxDepth {
			graph.MaxDepth = n.Level
		}
	}
	return graph, nil
}

// hasDependents reports whether any edge points at id
func (s *Store) hasDependents(ctx context.Context, q sqlx.QueryerContext, id string) (bool, error) {
	var n int
	if err := s.get(ctx, q, &n, "SELECT COUNT(*) FROM dependencies WHERE depends_on = ?", id); err != nil {
		return false, err
	}
	return n > 0, nil
}
