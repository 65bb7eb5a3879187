package api

import (
	"context"
	"fmt"
	"log"
	"strings"

	"liferoom.ai/internal/model"
	persistlog "liferoom.ai/internal/persistence/log"
	"liferoom.ai/internal/persistence/r2s3"
	"liferoom.ai/internal/photos"
)

// Publisher is the live feed side of Events.
type Publisher interface {
	PublishAgent(a model.Agent)
	PublishLifeDay(d model.LifeDay)
	PublishIntersection(x model.Intersection)
}

type Recorder interface {
	Record(e persistlog.Entry) error
}

type Archiver interface {
	Enqueue(job r2s3.Job)
}

// Events fans every room write out to the live feed, the activity log and
// the photo archive. Any of the three may be nil. It also serves as the
// simulator's room.Notifier.
type Events struct {
	feed     Publisher
	activity Recorder
	archive  Archiver
	fetcher  *photos.Fetcher
	skipURL  string
	logger   *log.Logger
}

// NewEvents builds the fan-out. Photos whose URL starts with skipURL (the
// placeholder service) are not archived.
func NewEvents(feed Publisher, activity Recorder, archive Archiver, fetcher *photos.Fetcher, skipURL string, logger *log.Logger) *Events {
	return &Events{
		feed:     feed,
		activity: activity,
		archive:  archive,
		fetcher:  fetcher,
		skipURL:  skipURL,
		logger:   logger,
	}
}

func (e *Events) record(kind, agent, ref, detail string) {
	if e.activity == nil {
		return
	}
	if err := e.activity.Record(persistlog.Entry{Kind: kind, Agent: agent, Ref: ref, Detail: detail}); err != nil {
		e.printf("activity log %s: %v", kind, err)
	}
}

func (e *Events) AgentRegistered(a model.Agent) {
	e.record(persistlog.KindRegister, a.Name, a.ID, "")
	if e.feed != nil {
		e.feed.PublishAgent(a)
	}
}

func (e *Events) PersonaCreated(p model.Persona) {
	e.record(persistlog.KindPersona, p.AgentName, p.ID, p.DisplayName)
}

func (e *Events) FrameworkUpdated(p model.Persona, attractedTo string) {
	e.record(persistlog.KindFramework, p.AgentName, p.ID,
		fmt.Sprintf("version=%d attracted_to=%s", p.FrameworkVersion, attractedTo))
}

func (e *Events) LifeDayCreated(d model.LifeDay) {
	e.record(persistlog.KindLifeDay, d.AgentName, d.ID,
		fmt.Sprintf("round=%d date=%s city=%s", d.RoundNumber, model.DateString(d.FictionalDate), d.Location.City))
	if e.feed != nil {
		e.feed.PublishLifeDay(d)
	}
	e.archivePhoto(d)
}

func (e *Events) IntersectionCreated(x model.Intersection) {
	e.record(persistlog.KindIntersection, x.InitiatingAgent, x.ID, "with="+x.OtherAgent+" type="+x.Type)
	if e.feed != nil {
		e.feed.PublishIntersection(x)
	}
}

func (e *Events) Simulated(agent string, round int, photoSource string) {
	e.record(persistlog.KindSimulate, agent, "", fmt.Sprintf("round=%d photo=%s", round, photoSource))
}

func (e *Events) SimulateFailed(agent string, err error) {
	e.record(persistlog.KindSimulateFail, agent, "", err.Error())
}

// archivePhoto queues a copy of the day's photo. The download happens on the
// archive worker.
func (e *Events) archivePhoto(d model.LifeDay) {
	if e.archive == nil || e.fetcher == nil {
		return
	}
	u := d.Photo.OriginalURL
	if _, err := photos.ValidateProxyURL(u); err != nil {
		return
	}
	if e.skipURL != "" && strings.HasPrefix(u, e.skipURL) {
		return
	}
	fetcher := e.fetcher
	e.archive.Enqueue(r2s3.Job{
		Key: "photos/" + strings.ToLower(d.AgentName) + "/" + d.ID,
		Load: func(ctx context.Context) ([]byte, string, error) {
			return fetcher.Fetch(ctx, u)
		},
	})
}

func (e *Events) printf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
