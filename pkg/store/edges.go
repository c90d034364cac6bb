package store

import (
	"context"
	"database/sql"
	"fmt"

	"cascade/pkg/domain"
)

// Edges returns every dependency edge, for rebuilding the in-memory graph
// at startup.
func (s *Store) Edges(ctx context.Context) ([]domain.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT predecessor_id, successor_id, dependency_type, lag_days,
		        auto_adjust, created_at
		 FROM dependencies ORDER BY predecessor_id, successor_id`)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	var out []domain.Edge
	for rows.Next() {
		var e domain.Edge
		var depType string
		var autoAdjust int
		var createdAt sql.NullString
		if err := rows.Scan(&e.PredecessorID, &e.SuccessorID, &depType,
			&e.LagDays, &autoAdjust, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		e.Type = domain.DependencyType(depType)
		e.AutoAdjust = autoAdjust != 0
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveEdge persists a dependency edge. The caller is responsible for having
// run the cycle check through the graph first.
func (s *Store) SaveEdge(ctx context.Context, e domain.Edge) error {
	autoAdjust := 0
	if e.AutoAdjust {
		autoAdjust = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dependencies (predecessor_id, successor_id, dependency_type,
		     lag_days, auto_adjust)
		 VALUES (?, ?, ?, ?, ?)`,
		e.PredecessorID, e.SuccessorID, string(e.Type), e.LagDays, autoAdjust)
	if err != nil {
		return fmt.Errorf("save dependency %s -> %s: %w", e.PredecessorID, e.SuccessorID, err)
	}
	return nil
}

// DeleteEdge removes the edge between the two tasks.
func (s *Store) DeleteEdge(ctx context.Context, predecessorID, successorID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dependencies WHERE predecessor_id = ? AND successor_id = ?`,
		predecessorID, successorID)
	if err != nil {
		return fmt.Errorf("delete dependency %s -> %s: %w", predecessorID, successorID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "dependency", ID: predecessorID + " -> " + successorID}
	}
	return nil
}
