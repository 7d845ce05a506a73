package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"schemaline/internal/domain"
)

// UpsertWorkflow writes a workflow definition and replaces its state list.
// States still referenced by objects cannot be removed.
func (r Repo) UpsertWorkflow(ctx context.Context, q Querier, w domain.Workflow) error {
	_, err := r.q(q).ExecContext(ctx, `INSERT INTO workflows(id,name,created_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name`, w.ID, w.Name, w.CreatedAt)
	if err != nil {
		return err
	}
	keep := make([]string, 0, len(w.States))
	for _, s := range w.States {
		keep = append(keep, s.ID)
	}
	del := `DELETE FROM workflow_states WHERE workflow_id=?`
	args := []any{w.ID}
	if len(keep) > 0 {
		del += ` AND id NOT IN (` + placeholders(len(keep)) + `)`
		args = append(args, stringArgs(keep)...)
	}
	if _, err := r.q(q).ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("prune workflow %s states: %w", w.ID, err)
	}
	for _, s := range w.States {
		succ, err := marshalJSON(nonNilStrings(s.SuccessorStateIDs))
		if err != nil {
			return err
		}
		_, err = r.q(q).ExecContext(ctx, `INSERT INTO workflow_states(id,workflow_id,name,is_initial,order_index,successors_json) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET workflow_id=excluded.workflow_id, name=excluded.name, is_initial=excluded.is_initial,
  order_index=excluded.order_index, successors_json=excluded.successors_json`,
			s.ID, w.ID, s.Name, boolInt(s.IsInitial), s.OrderIndex, succ)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetWorkflow returns a workflow with states ordered by (order_index, id).
func (r Repo) GetWorkflow(ctx context.Context, q Querier, id string) (domain.Workflow, error) {
	var w domain.Workflow
	err := r.q(q).QueryRowContext(ctx, `SELECT id,name,created_at FROM workflows WHERE id=?`, id).Scan(&w.ID, &w.Name, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.States, err = r.ListWorkflowStates(ctx, q, id)
	return w, err
}

func (r Repo) ListWorkflowStates(ctx context.Context, q Querier, workflowID string) ([]domain.WorkflowState, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT id,workflow_id,name,is_initial,order_index,successors_json FROM workflow_states WHERE workflow_id=? ORDER BY order_index, id`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var states []domain.WorkflowState
	for rows.Next() {
		var s domain.WorkflowState
		var initial int
		var succ string
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.Name, &initial, &s.OrderIndex, &succ); err != nil {
			return nil, err
		}
		s.IsInitial = initial == 1
		if err := json.Unmarshal([]byte(succ), &s.SuccessorStateIDs); err != nil {
			return nil, fmt.Errorf("state %s successors_json: %w", s.ID, err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

func (r Repo) ListWorkflows(ctx context.Context, q Querier) ([]domain.Workflow, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT id,name,created_at FROM workflows ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	var res []domain.Workflow
	for rows.Next() {
		var w domain.Workflow
		if err := rows.Scan(&w.ID, &w.Name, &w.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].States, err = r.ListWorkflowStates(ctx, q, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}
