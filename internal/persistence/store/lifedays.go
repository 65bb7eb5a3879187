package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/jmoiron/sqlx"

	"liferoom.ai/internal/model"
)

type lifeDayRow struct {
	ID               string          `db:"id"`
	AgentID          string          `db:"agent_id"`
	AgentName        string          `db:"agent_name"`
	RoundNumber      int             `db:"round_number"`
	FictionalDate    int64           `db:"fictional_date"`
	FictionalAge     int             `db:"fictional_age"`
	City             string          `db:"city"`
	Country          string          `db:"country"`
	Lat              sql.NullFloat64 `db:"lat"`
	Lon              sql.NullFloat64 `db:"lon"`
	Narrative        string          `db:"narrative"`
	PhotoJSON        string          `db:"photo_json"`
	ThoughtBubble    string          `db:"thought_bubble"`
	InteractionsJSON string          `db:"interactions_json"`
	IsDeviation      bool            `db:"is_deviation"`
	DeviationContext string          `db:"deviation_context"`
	CreatedAt        int64           `db:"created_at"`
}

func (r lifeDayRow) toModel() (model.LifeDay, error) {
	d := model.LifeDay{
		ID:                    r.ID,
		AgentID:               r.AgentID,
		AgentName:             r.AgentName,
		RoundNumber:           r.RoundNumber,
		FictionalDate:         fromMillis(r.FictionalDate),
		FictionalAge:          r.FictionalAge,
		Location:              model.Location{City: r.City, Country: r.Country},
		Narrative:             r.Narrative,
		ThoughtBubble:         r.ThoughtBubble,
		IsTrajectoryDeviation: r.IsDeviation,
		DeviationContext:      r.DeviationContext,
		CreatedAt:             fromMillis(r.CreatedAt),
	}
	if r.Lat.Valid && r.Lon.Valid {
		d.Location.Coordinates = &[2]float64{r.Lat.Float64, r.Lon.Float64}
	}
	if err := json.Unmarshal([]byte(r.PhotoJSON), &d.Photo); err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(r.InteractionsJSON), &d.Interactions); err != nil {
		return d, err
	}
	if d.Interactions == nil {
		d.Interactions = []model.Interaction{}
	}
	return d, nil
}

func lifeDayToRow(d model.LifeDay) (lifeDayRow, error) {
	photo, err := json.Marshal(d.Photo)
	if err != nil {
		return lifeDayRow{}, err
	}
	inter := d.Interactions
	if inter == nil {
		inter = []model.Interaction{}
	}
	ij, err := json.Marshal(inter)
	if err != nil {
		return lifeDayRow{}, err
	}
	r := lifeDayRow{
		ID:               d.ID,
		AgentID:          d.AgentID,
		AgentName:        d.AgentName,
		RoundNumber:      d.RoundNumber,
		FictionalDate:    millis(d.FictionalDate),
		FictionalAge:     d.FictionalAge,
		City:             d.Location.City,
		Country:          d.Location.Country,
		Narrative:        d.Narrative,
		PhotoJSON:        string(photo),
		ThoughtBubble:    d.ThoughtBubble,
		InteractionsJSON: string(ij),
		IsDeviation:      d.IsTrajectoryDeviation,
		DeviationContext: d.DeviationContext,
		CreatedAt:        millis(d.CreatedAt),
	}
	if d.Location.Coordinates != nil {
		r.Lat = sql.NullFloat64{Float64: d.Location.Coordinates[0], Valid: true}
		r.Lon = sql.NullFloat64{Float64: d.Location.Coordinates[1], Valid: true}
	}
	return r, nil
}

const insertLifeDay = `INSERT INTO life_days
	(id, agent_id, agent_name, round_number, fictional_date, fictional_age, city, country,
	 lat, lon, narrative, photo_json, thought_bubble, interactions_json, is_deviation,
	 deviation_context, created_at)
	VALUES (:id, :agent_id, :agent_name, :round_number, :fictional_date, :fictional_age, :city,
	 :country, :lat, :lon, :narrative, :photo_json, :thought_bubble, :interactions_json,
	 :is_deviation, :deviation_context, :created_at)`

// CreateLifeDay assigns the next round number (existing count + 1) and
// stores the day. The stored day is returned.
func (s *Store) CreateLifeDay(ctx context.Context, d model.LifeDay) (model.LifeDay, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM life_days WHERE agent_id = ?`, d.AgentID); err != nil {
			return err
		}
		d.RoundNumber = n + 1
		row, err := lifeDayToRow(d)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, insertLifeDay, row)
		return err
	})
	if err != nil {
		return model.LifeDay{}, err
	}
	if d.Interactions == nil {
		d.Interactions = []model.Interaction{}
	}
	return d, nil
}

const (
	SortReal      = "real"
	SortFictional = "fictional"
)

type LifeDayQuery struct {
	Agent  string
	Sort   string
	Limit  int
	Offset int
}

func (s *Store) ListLifeDays(ctx context.Context, q LifeDayQuery) ([]model.LifeDay, int, error) {
	where := ""
	var args []any
	if a := strings.TrimSpace(q.Agent); a != "" {
		where = ` WHERE agent_name = ? COLLATE NOCASE`
		args = append(args, a)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM life_days`+where, args...); err != nil {
		return nil, 0, err
	}
	order := ` ORDER BY created_at DESC, round_number DESC`
	if q.Sort == SortFictional {
		order = ` ORDER BY fictional_date DESC, created_at DESC`
	}
	days, err := s.selectDays(ctx, `SELECT * FROM life_days`+where+order+` LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	return days, total, err
}

// Timeline is one agent's days in fictional-date order.
func (s *Store) Timeline(ctx context.Context, agentName string) ([]model.LifeDay, error) {
	return s.selectDays(ctx, `SELECT * FROM life_days WHERE agent_name = ? COLLATE NOCASE
		ORDER BY fictional_date ASC, round_number ASC`, strings.TrimSpace(agentName))
}

// LatestLifeDay is the most recently created day of an agent.
func (s *Store) LatestLifeDay(ctx context.Context, agentName string) (model.LifeDay, error) {
	var r lifeDayRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM life_days WHERE agent_name = ? COLLATE NOCASE
		ORDER BY created_at DESC, round_number DESC LIMIT 1`, strings.TrimSpace(agentName))
	if err != nil {
		return model.LifeDay{}, notFound(err)
	}
	return r.toModel()
}

// OtherRecentDays returns the newest n days written by anyone but agentID.
func (s *Store) OtherRecentDays(ctx context.Context, agentID string, n int) ([]model.LifeDay, error) {
	return s.selectDays(ctx, `SELECT * FROM life_days WHERE agent_id <> ?
		ORDER BY created_at DESC LIMIT ?`, agentID, n)
}

// ExistingDates lists the agent's fictional dates as YYYY-MM-DD, oldest first.
func (s *Store) ExistingDates(ctx context.Context, agentID string) ([]string, error) {
	var ms []int64
	err := s.db.SelectContext(ctx, &ms,
		`SELECT fictional_date FROM life_days WHERE agent_id = ? ORDER BY fictional_date ASC`, agentID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, model.DateString(fromMillis(m)))
	}
	return out, nil
}

func (s *Store) selectDays(ctx context.Context, query string, args ...any) ([]model.LifeDay, error) {
	var rows []lifeDayRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.LifeDay, 0, len(rows))
	for _, r := range rows {
		d, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
