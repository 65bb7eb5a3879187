package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"liferoom.ai/internal/model"
)

type personaRow struct {
	ID               string `db:"id"`
	AgentID          string `db:"agent_id"`
	AgentName        string `db:"agent_name"`
	DisplayName      string `db:"display_name"`
	BirthPlaceJSON   string `db:"birth_place_json"`
	BirthDate        int64  `db:"birth_date"`
	FrameworkJSON    string `db:"framework_json"`
	FrameworkVersion int    `db:"framework_version"`
	HistoryJSON      string `db:"history_json"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

func (r personaRow) toModel() (model.Persona, error) {
	p := model.Persona{
		ID:               r.ID,
		AgentID:          r.AgentID,
		AgentName:        r.AgentName,
		DisplayName:      r.DisplayName,
		BirthDate:        fromMillis(r.BirthDate),
		FrameworkVersion: r.FrameworkVersion,
		CreatedAt:        fromMillis(r.CreatedAt),
		UpdatedAt:        fromMillis(r.UpdatedAt),
	}
	if err := json.Unmarshal([]byte(r.BirthPlaceJSON), &p.BirthPlace); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(r.FrameworkJSON), &p.LifeFramework); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(r.HistoryJSON), &p.FrameworkHistory); err != nil {
		return p, err
	}
	if p.FrameworkHistory == nil {
		p.FrameworkHistory = []model.FrameworkChange{}
	}
	return p, nil
}

func personaToRow(p model.Persona) (personaRow, error) {
	bp, err := json.Marshal(p.BirthPlace)
	if err != nil {
		return personaRow{}, err
	}
	fw, err := json.Marshal(nonNilBands(p.LifeFramework))
	if err != nil {
		return personaRow{}, err
	}
	hist := p.FrameworkHistory
	if hist == nil {
		hist = []model.FrameworkChange{}
	}
	h, err := json.Marshal(hist)
	if err != nil {
		return personaRow{}, err
	}
	return personaRow{
		ID:               p.ID,
		AgentID:          p.AgentID,
		AgentName:        p.AgentName,
		DisplayName:      p.DisplayName,
		BirthPlaceJSON:   string(bp),
		BirthDate:        millis(p.BirthDate),
		FrameworkJSON:    string(fw),
		FrameworkVersion: p.FrameworkVersion,
		HistoryJSON:      string(h),
		CreatedAt:        millis(p.CreatedAt),
		UpdatedAt:        millis(p.UpdatedAt),
	}, nil
}

const insertPersona = `INSERT INTO personas
	(id, agent_id, agent_name, display_name, birth_place_json, birth_date,
	 framework_json, framework_version, history_json, created_at, updated_at)
	VALUES (:id, :agent_id, :agent_name, :display_name, :birth_place_json, :birth_date,
	 :framework_json, :framework_version, :history_json, :created_at, :updated_at)`

// CreatePersona stores the agent's single persona; a second one is ErrConflict.
func (s *Store) CreatePersona(ctx context.Context, p model.Persona) error {
	row, err := personaToRow(p)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM personas WHERE agent_id = ?`, p.AgentID); err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		_, err := tx.NamedExecContext(ctx, insertPersona, row)
		return err
	})
}

func (s *Store) PersonaByAgent(ctx context.Context, agentID string) (model.Persona, error) {
	return s.personaWhere(ctx, `agent_id = ?`, agentID)
}

func (s *Store) PersonaByName(ctx context.Context, agentName string) (model.Persona, error) {
	return s.personaWhere(ctx, `agent_name = ? COLLATE NOCASE`, strings.TrimSpace(agentName))
}

// DisplayNames maps agent name to persona display name for every persona in
// one query.
func (s *Store) DisplayNames(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		AgentName   string `db:"agent_name"`
		DisplayName string `db:"display_name"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT agent_name, display_name FROM personas`); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.AgentName] = r.DisplayName
	}
	return out, nil
}

func (s *Store) personaWhere(ctx context.Context, where string, arg any) (model.Persona, error) {
	var r personaRow
	if err := s.db.GetContext(ctx, &r, `SELECT * FROM personas WHERE `+where, arg); err != nil {
		return model.Persona{}, notFound(err)
	}
	return r.toModel()
}

// FrameworkUpdate replaces the life framework and records the old one.
type FrameworkUpdate struct {
	Framework        []model.FrameworkBand
	Reason           string
	AttractedToAgent string
	At               time.Time
}

// UpdateFramework appends the previous framework to the history and bumps
// the version by one.
func (s *Store) UpdateFramework(ctx context.Context, agentID string, u FrameworkUpdate) (model.Persona, error) {
	var out model.Persona
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var r personaRow
		if err := tx.GetContext(ctx, &r, `SELECT * FROM personas WHERE agent_id = ?`, agentID); err != nil {
			return notFound(err)
		}
		p, err := r.toModel()
		if err != nil {
			return err
		}
		p.FrameworkHistory = append(p.FrameworkHistory, model.FrameworkChange{
			Version:           p.FrameworkVersion,
			ChangedAt:         u.At.UTC(),
			Reason:            u.Reason,
			AttractedToAgent:  u.AttractedToAgent,
			PreviousFramework: nonNilBands(p.LifeFramework),
		})
		p.LifeFramework = u.Framework
		p.FrameworkVersion++
		p.UpdatedAt = u.At.UTC()

		nr, err := personaToRow(p)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `UPDATE personas SET
			framework_json = :framework_json, framework_version = :framework_version,
			history_json = :history_json, updated_at = :updated_at
			WHERE id = :id`, nr)
		if err != nil {
			return err
		}
		out, err = nr.toModel()
		return err
	})
	return out, err
}

func nonNilBands(b []model.FrameworkBand) []model.FrameworkBand {
	if b == nil {
		return []model.FrameworkBand{}
	}
	return b
}
