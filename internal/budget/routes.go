package budget

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches the owner budget routes. Authentication middleware
// is installed by the router above this group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/preview", h.Preview)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/share", h.Share)
	r.Post("/{id}/clone", h.Clone)
}
