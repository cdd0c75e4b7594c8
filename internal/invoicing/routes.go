package invoicing

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// MountRoutes registers billing session routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.Open)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Show)
			r.Delete("/", h.Close)
			r.Get("/summary", h.Summary)
			r.Post("/lines", h.AddLine)
			r.Patch("/lines/{lineID}", h.EditLine)
			r.Delete("/lines/{lineID}", h.RemoveLine)
			r.Put("/extra-discount", h.SetExtraDiscount)
			r.Post("/stock/refresh", h.RefreshStock)
			r.Group(func(gr chi.Router) {
				if h.submitLimit > 0 {
					gr.Use(httprate.Limit(h.submitLimit, time.Minute,
						httprate.WithKeyFuncs(submitLimitKey),
						httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
							http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
						}),
					))
				}
				gr.Post("/submit", h.Submit)
			})
		})
	})
}

func submitLimitKey(r *http.Request) (string, error) {
	if actor := strings.TrimSpace(shared.ActorFromContext(r.Context())); actor != "" {
		return "actor:" + actor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
