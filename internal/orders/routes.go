package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers order routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders/{id}", h.Show)
	r.Post("/orders/{id}/{action}", h.Transition)
}
