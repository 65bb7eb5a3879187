package store

import (
	"context"
	"strings"

	"liferoom.ai/internal/model"
)

type intersectionRow struct {
	ID                  string `db:"id"`
	InitiatingAgent     string `db:"initiating_agent"`
	OtherAgent          string `db:"other_agent"`
	InitiatingLifeDayID string `db:"initiating_life_day_id"`
	OtherLifeDayID      string `db:"other_life_day_id"`
	FictionalDateApprox string `db:"fictional_date_approx"`
	Location            string `db:"location"`
	Type                string `db:"type"`
	Narrative           string `db:"narrative"`
	CreatedAt           int64  `db:"created_at"`
}

func (r intersectionRow) toModel() model.Intersection {
	return model.Intersection{
		ID:                  r.ID,
		InitiatingAgent:     r.InitiatingAgent,
		OtherAgent:          r.OtherAgent,
		InitiatingLifeDayID: r.InitiatingLifeDayID,
		OtherLifeDayID:      r.OtherLifeDayID,
		FictionalDateApprox: r.FictionalDateApprox,
		Location:            r.Location,
		Type:                r.Type,
		Narrative:           r.Narrative,
		CreatedAt:           fromMillis(r.CreatedAt),
	}
}

func intersectionToRow(x model.Intersection) intersectionRow {
	return intersectionRow{
		ID:                  x.ID,
		InitiatingAgent:     x.InitiatingAgent,
		OtherAgent:          x.OtherAgent,
		InitiatingLifeDayID: x.InitiatingLifeDayID,
		OtherLifeDayID:      x.OtherLifeDayID,
		FictionalDateApprox: x.FictionalDateApprox,
		Location:            x.Location,
		Type:                x.Type,
		Narrative:           x.Narrative,
		CreatedAt:           millis(x.CreatedAt),
	}
}

const insertIntersection = `INSERT INTO intersections
	(id, initiating_agent, other_agent, initiating_life_day_id, other_life_day_id,
	 fictional_date_approx, location, type, narrative, created_at)
	VALUES (:id, :initiating_agent, :other_agent, :initiating_life_day_id, :other_life_day_id,
	 :fictional_date_approx, :location, :type, :narrative, :created_at)`

func (s *Store) CreateIntersection(ctx context.Context, x model.Intersection) error {
	_, err := s.db.NamedExecContext(ctx, insertIntersection, intersectionToRow(x))
	return err
}

// ListIntersections filters by agent on either side, newest first.
func (s *Store) ListIntersections(ctx context.Context, agent string, limit, offset int) ([]model.Intersection, int, error) {
	where := ""
	var args []any
	if a := strings.TrimSpace(agent); a != "" {
		where = ` WHERE initiating_agent = ? COLLATE NOCASE OR other_agent = ? COLLATE NOCASE`
		args = append(args, a, a)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM intersections`+where, args...); err != nil {
		return nil, 0, err
	}
	var rows []intersectionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM intersections`+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Intersection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, total, nil
}
