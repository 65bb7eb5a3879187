package api

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

func (s *Server) handleHealthz(rw http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		http.Error(rw, "db: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP liferoom_uptime_seconds Seconds since the server started.\n")
	fmt.Fprintf(rw, "# TYPE liferoom_uptime_seconds gauge\n")
	fmt.Fprintf(rw, "liferoom_uptime_seconds %.0f\n", time.Since(s.started).Seconds())

	if st, err := s.Store.Stats(r.Context()); err == nil {
		fmt.Fprintf(rw, "# HELP liferoom_rows Stored rows per table.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_rows gauge\n")
		fmt.Fprintf(rw, "liferoom_rows{table=%q} %d\n", "agents", st.Agents)
		fmt.Fprintf(rw, "liferoom_rows{table=%q} %d\n", "personas", st.Personas)
		fmt.Fprintf(rw, "liferoom_rows{table=%q} %d\n", "life_days", st.LifeDays)
		fmt.Fprintf(rw, "liferoom_rows{table=%q} %d\n", "intersections", st.Intersections)

		fmt.Fprintf(rw, "# HELP liferoom_agents_claimed Claimed agents.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_agents_claimed gauge\n")
		fmt.Fprintf(rw, "liferoom_agents_claimed %d\n", st.Claimed)
	} else {
		s.printf("metrics: store stats: %v", err)
	}

	if s.Scheduler != nil {
		st := s.Scheduler.Stats()
		fmt.Fprintf(rw, "# HELP liferoom_scheduler_runs_total Scheduler passes started.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_scheduler_runs_total counter\n")
		fmt.Fprintf(rw, "liferoom_scheduler_runs_total %d\n", st.Runs)

		fmt.Fprintf(rw, "# HELP liferoom_scheduler_skipped_total Triggers skipped because a pass was already running.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_scheduler_skipped_total counter\n")
		fmt.Fprintf(rw, "liferoom_scheduler_skipped_total %d\n", st.Skipped)

		fmt.Fprintf(rw, "# HELP liferoom_simulations_total Agent simulations by outcome.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_simulations_total counter\n")
		fmt.Fprintf(rw, "liferoom_simulations_total{result=%q} %d\n", "ok", st.Simulated)
		fmt.Fprintf(rw, "liferoom_simulations_total{result=%q} %d\n", "error", st.Failed)

		fmt.Fprintf(rw, "# HELP liferoom_scheduler_last_run_unix Unix time of the last pass.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_scheduler_last_run_unix gauge\n")
		fmt.Fprintf(rw, "liferoom_scheduler_last_run_unix %d\n", st.LastRunUnix)

		fmt.Fprintf(rw, "# HELP liferoom_scheduler_last_run_ms Duration of the last pass in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_scheduler_last_run_ms gauge\n")
		fmt.Fprintf(rw, "liferoom_scheduler_last_run_ms %.3f\n", float64(st.LastRunDuration)/float64(time.Millisecond))

		running := 0
		if st.Running {
			running = 1
		}
		fmt.Fprintf(rw, "# HELP liferoom_scheduler_running Whether a pass is in flight.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_scheduler_running gauge\n")
		fmt.Fprintf(rw, "liferoom_scheduler_running %d\n", running)
	}

	if s.Hub != nil {
		st := s.Hub.Stats()
		fmt.Fprintf(rw, "# HELP liferoom_feed_subscribers Connected live feed clients.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_feed_subscribers gauge\n")
		fmt.Fprintf(rw, "liferoom_feed_subscribers %d\n", st.Subscribers)

		fmt.Fprintf(rw, "# HELP liferoom_feed_published_total Events published to the live feed.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_feed_published_total counter\n")
		fmt.Fprintf(rw, "liferoom_feed_published_total %d\n", st.Published)

		fmt.Fprintf(rw, "# HELP liferoom_feed_dropped_total Feed clients disconnected for falling behind.\n")
		fmt.Fprintf(rw, "# TYPE liferoom_feed_dropped_total counter\n")
		fmt.Fprintf(rw, "liferoom_feed_dropped_total %d\n", st.Dropped)
	}

	writeArchiveMetrics(rw, s.Mirror)
}

func writeArchiveMetrics(w io.Writer, m MirrorStats) {
	if m == nil {
		return
	}
	s := m.Stats()
	fmt.Fprintf(w, "# HELP liferoom_archive_queue_depth Current photo archive queue depth.\n")
	fmt.Fprintf(w, "# TYPE liferoom_archive_queue_depth gauge\n")
	fmt.Fprintf(w, "liferoom_archive_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(w, "# HELP liferoom_archive_queue_capacity Photo archive queue capacity.\n")
	fmt.Fprintf(w, "# TYPE liferoom_archive_queue_capacity gauge\n")
	fmt.Fprintf(w, "liferoom_archive_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(w, "# HELP liferoom_archive_enqueued_total Total archive enqueue attempts.\n")
	fmt.Fprintf(w, "# TYPE liferoom_archive_enqueued_total counter\n")
	fmt.Fprintf(w, "liferoom_archive_enqueued_total %d\n", s.EnqueuedTotal)

	fmt.Fprintf(w, "# HELP liferoom_archive_queue_saturated_total Enqueue attempts that found the queue full.\n")
	fmt.Fprintf(w, "# TYPE liferoom_archive_queue_saturated_total counter\n")
	fmt.Fprintf(w, "liferoom_archive_queue_saturated_total %d\n", s.QueueSaturatedTotal)

	fmt.Fprintf(w, "# HELP liferoom_archive_dropped_total Jobs dropped because the queue stayed full.\n")
	fmt.Fprintf(w, "# TYPE liferoom_archive_dropped_total counter\n")
	fmt.Fprintf(w, "liferoom_archive_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(w, "# HELP liferoom_archive_uploads_total Archive uploads by outcome.\n")
	fmt.Fprintf(w, "# TYPE liferoom_archive_uploads_total counter\n")
	fmt.Fprintf(w, "liferoom_archive_uploads_total{result=%q} %d\n", "ok", s.UploadSuccessTotal)
	fmt.Fprintf(w, "liferoom_archive_uploads_total{result=%q} %d\n", "error", s.UploadFailTotal)

	fmt.Fprintf(w, "# HELP liferoom_archive_last_success_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(w, "# TYPE liferoom_archive_last_success_unix gauge\n")
	fmt.Fprintf(w, "liferoom_archive_last_success_unix %d\n", s.LastSuccessUnix)
}
