package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"schemaline/internal/domain"
)

const modelColumns = `id,name,namespace,COALESCE(description,''),display_json,workflow_id,created_at,updated_at`

const propertyColumns = `id,model_id,name,type,required,is_unique,order_index,related_model_id,relationship_type,unit,num_precision,min_value,max_value,auto_set_on_create,auto_set_on_update,default_json,validation_ruleset_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (domain.Model, error) {
	var m domain.Model
	var display string
	var workflowID sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &m.Namespace, &m.Description, &display, &workflowID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return m, ErrNotFound
		}
		return m, err
	}
	if err := json.Unmarshal([]byte(display), &m.DisplayPropertyNames); err != nil {
		return m, fmt.Errorf("model %s display_json: %w", m.ID, err)
	}
	m.WorkflowID = stringPtr(workflowID)
	return m, nil
}

func scanProperty(row rowScanner) (domain.Property, error) {
	var p domain.Property
	var (
		typ                            string
		required, unique, auto1, auto2 int
		related, relType, unit         sql.NullString
		precision                      sql.NullInt64
		minV, maxV                     sql.NullFloat64
		def, ruleset                   sql.NullString
	)
	if err := row.Scan(&p.ID, &p.ModelID, &p.Name, &typ, &required, &unique, &p.OrderIndex,
		&related, &relType, &unit, &precision, &minV, &maxV, &auto1, &auto2, &def, &ruleset); err != nil {
		return p, err
	}
	p.Type = domain.PropertyType(typ)
	p.Required = required == 1
	p.IsUnique = unique == 1
	p.AutoSetOnCreate = auto1 == 1
	p.AutoSetOnUpdate = auto2 == 1
	p.RelatedModelID = stringPtr(related)
	if relType.Valid {
		rt := domain.RelationshipType(relType.String)
		p.RelationshipType = &rt
	}
	p.Unit = stringPtr(unit)
	if precision.Valid {
		v := int(precision.Int64)
		p.Precision = &v
	}
	if minV.Valid {
		v := minV.Float64
		p.MinValue = &v
	}
	if maxV.Valid {
		v := maxV.Float64
		p.MaxValue = &v
	}
	if def.Valid {
		if err := json.Unmarshal([]byte(def.String), &p.DefaultValue); err != nil {
			return p, fmt.Errorf("property %s default_json: %w", p.ID, err)
		}
	}
	p.ValidationRulesetID = stringPtr(ruleset)
	return p, nil
}

// GetModel returns a model with its properties ordered by order_index.
func (r Repo) GetModel(ctx context.Context, q Querier, id string) (domain.Model, error) {
	m, err := scanModel(r.q(q).QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id=?`, id))
	if err != nil {
		return m, err
	}
	m.Properties, err = r.ListProperties(ctx, q, id)
	return m, err
}

func (r Repo) GetModelByName(ctx context.Context, q Querier, name string) (domain.Model, error) {
	var id string
	err := r.q(q).QueryRowContext(ctx, `SELECT id FROM models WHERE name=?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.Model{}, ErrNotFound
	}
	if err != nil {
		return domain.Model{}, err
	}
	return r.GetModel(ctx, q, id)
}

func (r Repo) ListModels(ctx context.Context, q Querier) ([]domain.Model, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT `+modelColumns+` FROM models ORDER BY namespace, name`)
	if err != nil {
		return nil, err
	}
	var models []domain.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		models = append(models, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	props, err := r.allProperties(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range models {
		models[i].Properties = props[models[i].ID]
	}
	return models, nil
}

func (r Repo) ListProperties(ctx context.Context, q Querier, modelID string) ([]domain.Property, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE model_id=? ORDER BY order_index, id`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var props []domain.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

func (r Repo) allProperties(ctx context.Context, q Querier) (map[string][]domain.Property, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT `+propertyColumns+` FROM properties ORDER BY model_id, order_index, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]domain.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		res[p.ModelID] = append(res[p.ModelID], p)
	}
	return res, rows.Err()
}

// InsertModel stores a model row and all of its properties.
func (r Repo) InsertModel(ctx context.Context, q Querier, m domain.Model) error {
	display, err := marshalJSON(nonNilStrings(m.DisplayPropertyNames))
	if err != nil {
		return err
	}
	_, err = r.q(q).ExecContext(ctx, `INSERT INTO models(id,name,namespace,description,display_json,workflow_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.Name, m.Namespace, nullable(m.Description), display, nullableStringPtr(m.WorkflowID), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	for _, p := range m.Properties {
		if err := r.upsertProperty(ctx, q, p); err != nil {
			return err
		}
	}
	return nil
}

// UpdateModel rewrites the model row and replaces its property list. Properties
// keep their ids when the caller passes them back.
func (r Repo) UpdateModel(ctx context.Context, q Querier, m domain.Model) error {
	display, err := marshalJSON(nonNilStrings(m.DisplayPropertyNames))
	if err != nil {
		return err
	}
	res, err := r.q(q).ExecContext(ctx, `UPDATE models SET name=?,namespace=?,description=?,display_json=?,workflow_id=?,updated_at=? WHERE id=?`,
		m.Name, m.Namespace, nullable(m.Description), display, nullableStringPtr(m.WorkflowID), m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	keep := make([]string, 0, len(m.Properties))
	for _, p := range m.Properties {
		keep = append(keep, p.ID)
	}
	del := `DELETE FROM properties WHERE model_id=?`
	args := []any{m.ID}
	if len(keep) > 0 {
		del += ` AND id NOT IN (` + placeholders(len(keep)) + `)`
		args = append(args, stringArgs(keep)...)
	}
	if _, err := r.q(q).ExecContext(ctx, del, args...); err != nil {
		return err
	}
	// Two passes so a rename that swaps names never trips UNIQUE(model_id,name).
	for _, p := range m.Properties {
		if _, err := r.q(q).ExecContext(ctx, `UPDATE properties SET name='~'||id WHERE id=?`, p.ID); err != nil {
			return err
		}
	}
	for _, p := range m.Properties {
		if err := r.upsertProperty(ctx, q, p); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) upsertProperty(ctx context.Context, q Querier, p domain.Property) error {
	var def any
	if p.DefaultValue != nil {
		s, err := marshalJSON(p.DefaultValue)
		if err != nil {
			return fmt.Errorf("property %s default: %w", p.Name, err)
		}
		def = s
	}
	var relType any
	if p.RelationshipType != nil {
		relType = string(*p.RelationshipType)
	}
	_, err := r.q(q).ExecContext(ctx, `INSERT INTO properties(`+propertyColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, type=excluded.type, required=excluded.required, is_unique=excluded.is_unique,
  order_index=excluded.order_index, related_model_id=excluded.related_model_id, relationship_type=excluded.relationship_type,
  unit=excluded.unit, num_precision=excluded.num_precision, min_value=excluded.min_value, max_value=excluded.max_value,
  auto_set_on_create=excluded.auto_set_on_create, auto_set_on_update=excluded.auto_set_on_update,
  default_json=excluded.default_json, validation_ruleset_id=excluded.validation_ruleset_id`,
		p.ID, p.ModelID, p.Name, string(p.Type), boolInt(p.Required), boolInt(p.IsUnique), p.OrderIndex,
		nullableStringPtr(p.RelatedModelID), relType, nullableStringPtr(p.Unit), nullableIntPtr(p.Precision),
		nullableFloatPtr(p.MinValue), nullableFloatPtr(p.MaxValue), boolInt(p.AutoSetOnCreate), boolInt(p.AutoSetOnUpdate),
		def, nullableStringPtr(p.ValidationRulesetID))
	return err
}

func (r Repo) DeleteModel(ctx context.Context, q Querier, id string) error {
	if _, err := r.q(q).ExecContext(ctx, `DELETE FROM object_unique_values WHERE model_id=?`, id); err != nil {
		return err
	}
	res, err := r.q(q).ExecContext(ctx, `DELETE FROM models WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ModelNameTaken reports whether another model already uses name.
func (r Repo) ModelNameTaken(ctx context.Context, q Querier, name, excludeID string) (bool, error) {
	var n int
	err := r.q(q).QueryRowContext(ctx, `SELECT COUNT(1) FROM models WHERE name=? AND id<>?`, name, excludeID).Scan(&n)
	return n > 0, err
}

// ModelsReferencing lists models other than modelID holding a relationship property targeting it.
func (r Repo) ModelsReferencing(ctx context.Context, q Querier, modelID string) ([]string, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT DISTINCT model_id FROM properties WHERE type='relationship' AND related_model_id=? AND model_id<>? ORDER BY model_id`, modelID, modelID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
