package http

import "chime/internal/modkit/httpkit"

// Register mounts the admin routes on r
func Register(r httpkit.Router, h *Handlers) {
	r.Route("/alarms", func(ar httpkit.Router) {
		ar.Post("/", httpkit.Handle(h.ScheduleAlarm))
		ar.Put("/", httpkit.Handle(h.UpdateAlarm))
		ar.Get("/", httpkit.Handle(h.ListAlarms))
		ar.Get("/count", httpkit.Handle(h.CountAlarms))
		ar.Delete("/", httpkit.Handle(h.DeleteAlarm))
	})

	r.Route("/descriptions", func(dr httpkit.Router) {
		dr.Put("/", httpkit.Handle(h.SetDescription))
		dr.Get("/", httpkit.Handle(h.ListDescriptions))
	})

	r.Route("/jobs", func(jr httpkit.Router) {
		jr.Get("/", httpkit.Handle(h.Jobs))
		jr.Delete("/clear", httpkit.Handle(h.ClearJobs))
	})

	r.Post("/reload", httpkit.Handle(h.Reload))
	r.Get("/health", httpkit.Handle(h.Health))
	r.Get("/debug/scheduler-stats", httpkit.Handle(h.SchedulerStats))
}
