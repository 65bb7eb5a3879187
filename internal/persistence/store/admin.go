package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"liferoom.ai/internal/model"
)

const settingsKey = "global"

func (s *Store) Settings(ctx context.Context) (model.Settings, error) {
	var r struct {
		FlickrAPIKey sql.NullString `db:"flickr_api_key"`
		UpdatedAt    int64          `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &r, `SELECT flickr_api_key, updated_at FROM settings WHERE key = ?`, settingsKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Settings{}, nil
		}
		return model.Settings{}, err
	}
	return model.Settings{FlickrAPIKey: r.FlickrAPIKey.String, UpdatedAt: fromMillis(r.UpdatedAt)}, nil
}

// PatchSettings upserts the settings row. A nil field is left unchanged.
func (s *Store) PatchSettings(ctx context.Context, flickrAPIKey *string, at time.Time) (model.Settings, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO settings(key, flickr_api_key, updated_at) VALUES (?, NULL, ?)`,
			settingsKey, millis(at)); err != nil {
			return err
		}
		if flickrAPIKey != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE settings SET flickr_api_key = ? WHERE key = ?`,
				*flickrAPIKey, settingsKey); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE settings SET updated_at = ? WHERE key = ?`, millis(at), settingsKey)
		return err
	})
	if err != nil {
		return model.Settings{}, err
	}
	return s.Settings(ctx)
}

type Stats struct {
	Agents        int           `json:"agents"`
	Claimed       int           `json:"claimed"`
	Personas      int           `json:"personas"`
	LifeDays      int           `json:"lifeDays"`
	Intersections int           `json:"intersections"`
	RecentAgents  []model.Agent `json:"recentAgents"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.GetContext(ctx, &st.Agents, `SELECT COUNT(*) FROM agents`)
	if err == nil {
		err = s.db.GetContext(ctx, &st.Claimed, `SELECT COUNT(*) FROM agents WHERE claim_status = ?`, model.ClaimStatusClaimed)
	}
	if err == nil {
		err = s.db.GetContext(ctx, &st.Personas, `SELECT COUNT(*) FROM personas`)
	}
	if err == nil {
		err = s.db.GetContext(ctx, &st.LifeDays, `SELECT COUNT(*) FROM life_days`)
	}
	if err == nil {
		err = s.db.GetContext(ctx, &st.Intersections, `SELECT COUNT(*) FROM intersections`)
	}
	if err != nil {
		return Stats{}, err
	}
	st.RecentAgents, _, err = s.ListAgents(ctx, AgentQuery{Sort: SortNew, All: true, Limit: 10})
	return st, err
}

// Dump is a complete copy of the room, secrets included.
type Dump struct {
	Agents        []model.Agent
	Personas      []model.Persona
	LifeDays      []model.LifeDay
	Intersections []model.Intersection
	Settings      model.Settings
}

func (s *Store) Export(ctx context.Context) (Dump, error) {
	var d Dump
	var agents []agentRow
	if err := s.db.SelectContext(ctx, &agents, `SELECT `+agentCols+` FROM agents a ORDER BY a.created_at, a.id`); err != nil {
		return d, err
	}
	for _, r := range agents {
		d.Agents = append(d.Agents, r.toModel())
	}
	var personas []personaRow
	if err := s.db.SelectContext(ctx, &personas, `SELECT * FROM personas ORDER BY created_at, id`); err != nil {
		return d, err
	}
	for _, r := range personas {
		p, err := r.toModel()
		if err != nil {
			return d, err
		}
		d.Personas = append(d.Personas, p)
	}
	days, err := s.selectDays(ctx, `SELECT * FROM life_days ORDER BY created_at, agent_id, round_number`)
	if err != nil {
		return d, err
	}
	d.LifeDays = days
	var inter []intersectionRow
	if err := s.db.SelectContext(ctx, &inter, `SELECT * FROM intersections ORDER BY created_at, id`); err != nil {
		return d, err
	}
	for _, r := range inter {
		d.Intersections = append(d.Intersections, r.toModel())
	}
	d.Settings, err = s.Settings(ctx)
	return d, err
}

// Import replaces the whole room with d in one transaction. Round numbers
// are kept as exported.
func (s *Store) Import(ctx context.Context, d Dump) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM intersections`, `DELETE FROM life_days`, `DELETE FROM personas`,
			`DELETE FROM agents`, `DELETE FROM settings`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		for _, a := range d.Agents {
			if _, err := tx.ExecContext(ctx, `INSERT INTO agents
				(id, name, description, api_key, claim_token, claim_status, owner_email, created_at, last_active)
				VALUES (?,?,?,?,?,?,?,?,?)`,
				a.ID, a.Name, a.Description, a.APIKey, a.ClaimToken, a.ClaimStatus, a.OwnerEmail,
				millis(a.CreatedAt), nullMillis(a.LastActive)); err != nil {
				return err
			}
		}
		for _, p := range d.Personas {
			row, err := personaToRow(p)
			if err != nil {
				return err
			}
			if _, err := tx.NamedExecContext(ctx, insertPersona, row); err != nil {
				return err
			}
		}
		for _, ld := range d.LifeDays {
			row, err := lifeDayToRow(ld)
			if err != nil {
				return err
			}
			if _, err := tx.NamedExecContext(ctx, insertLifeDay, row); err != nil {
				return err
			}
		}
		for _, x := range d.Intersections {
			if _, err := tx.NamedExecContext(ctx, insertIntersection, intersectionToRow(x)); err != nil {
				return err
			}
		}
		if !d.Settings.UpdatedAt.IsZero() {
			if _, err := tx.ExecContext(ctx, `INSERT INTO settings(key, flickr_api_key, updated_at) VALUES (?,?,?)`,
				settingsKey, nullString(d.Settings.FlickrAPIKey), millis(d.Settings.UpdatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
