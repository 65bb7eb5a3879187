package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"liferoom.ai/internal/model"
)

type agentRow struct {
	ID          string        `db:"id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	APIKey      string        `db:"api_key"`
	ClaimToken  string        `db:"claim_token"`
	ClaimStatus string        `db:"claim_status"`
	OwnerEmail  string        `db:"owner_email"`
	CreatedAt   int64         `db:"created_at"`
	LastActive  sql.NullInt64 `db:"last_active"`
	HasPersona  bool          `db:"has_persona"`
}

func (r agentRow) toModel() model.Agent {
	a := model.Agent{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		ClaimStatus: r.ClaimStatus,
		CreatedAt:   fromMillis(r.CreatedAt),
		APIKey:      r.APIKey,
		ClaimToken:  r.ClaimToken,
		OwnerEmail:  r.OwnerEmail,
		HasPersona:  r.HasPersona,
	}
	if r.LastActive.Valid {
		t := fromMillis(r.LastActive.Int64)
		a.LastActive = &t
	}
	return a
}

const agentCols = `a.id, a.name, a.description, a.api_key, a.claim_token, a.claim_status,
	a.owner_email, a.created_at, a.last_active,
	EXISTS(SELECT 1 FROM personas p WHERE p.agent_id = a.id) AS has_persona`

func (s *Store) CreateAgent(ctx context.Context, a model.Agent) error {
	if a.ID == "" || a.Name == "" || a.APIKey == "" {
		return fmt.Errorf("create agent: id, name and api key are required")
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM agents WHERE name = ? COLLATE NOCASE`, a.Name); err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO agents
			(id, name, description, api_key, claim_token, claim_status, owner_email, created_at, last_active)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			a.ID, a.Name, a.Description, a.APIKey, a.ClaimToken, a.ClaimStatus, a.OwnerEmail,
			millis(a.CreatedAt), nullMillis(a.LastActive))
		return err
	})
}

func (s *Store) AgentByAPIKey(ctx context.Context, key string) (model.Agent, error) {
	if key == "" {
		return model.Agent{}, ErrNotFound
	}
	return s.agentWhere(ctx, `a.api_key = ?`, key)
}

// AgentByName matches case-insensitively.
func (s *Store) AgentByName(ctx context.Context, name string) (model.Agent, error) {
	return s.agentWhere(ctx, `a.name = ? COLLATE NOCASE`, strings.TrimSpace(name))
}

func (s *Store) AgentByID(ctx context.Context, id string) (model.Agent, error) {
	return s.agentWhere(ctx, `a.id = ?`, id)
}

func (s *Store) agentWhere(ctx context.Context, where string, arg any) (model.Agent, error) {
	var r agentRow
	err := s.db.GetContext(ctx, &r, `SELECT `+agentCols+` FROM agents a WHERE `+where, arg)
	if err != nil {
		return model.Agent{}, notFound(err)
	}
	return r.toModel(), nil
}

const (
	SortNew    = "new"
	SortActive = "active"
	SortName   = "name"
)

type AgentQuery struct {
	Sort   string
	All    bool // include unclaimed agents
	Limit  int
	Offset int
}

// ListAgents returns one page and the total matching count.
func (s *Store) ListAgents(ctx context.Context, q AgentQuery) ([]model.Agent, int, error) {
	where := ""
	var args []any
	if !q.All {
		where = ` WHERE a.claim_status = ?`
		args = append(args, model.ClaimStatusClaimed)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM agents a`+where, args...); err != nil {
		return nil, 0, err
	}

	order := ` ORDER BY a.created_at DESC, a.id`
	switch q.Sort {
	case SortActive:
		order = ` ORDER BY a.last_active IS NULL, a.last_active DESC, a.id`
	case SortName:
		order = ` ORDER BY a.name ASC`
	}
	var rows []agentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+agentCols+` FROM agents a`+where+order+` LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Agent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, total, nil
}

func (s *Store) TouchAgent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET last_active = ? WHERE id = ?`, millis(at), id)
	return affected(res, err)
}

func (s *Store) UpdateAgentDescription(ctx context.Context, id, description string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET description = ? WHERE id = ?`, description, id)
	return affected(res, err)
}

// ClaimAgent marks an agent as owned. Claiming twice is a no-op.
func (s *Store) ClaimAgent(ctx context.Context, id, ownerEmail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET claim_status = ?, owner_email = ? WHERE id = ?`,
		model.ClaimStatusClaimed, ownerEmail, id)
	return affected(res, err)
}

// StaleAgents lists agents never active or last active before cutoff,
// oldest first.
func (s *Store) StaleAgents(ctx context.Context, cutoff time.Time) ([]model.Agent, error) {
	var rows []agentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+agentCols+` FROM agents a
		WHERE a.last_active IS NULL OR a.last_active < ?
		ORDER BY a.last_active IS NOT NULL, a.last_active ASC, a.created_at ASC`,
		millis(cutoff))
	if err != nil {
		return nil, err
	}
	out := make([]model.Agent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
