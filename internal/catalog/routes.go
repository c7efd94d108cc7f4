package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers the catalog, cart, favorites, and checkout routes
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware, adminMiddleware Middleware) {
	// Public catalog reads
	r.Get("/products", handler.ListProducts)
	r.Get("/products/{id}", handler.GetProduct)

	// Admin product writes
	r.Route("/admin/products", func(r chi.Router) {
		r.Use(authMiddleware, adminMiddleware)

		r.Post("/", handler.CreateProduct)
		r.Put("/{id}", handler.UpdateProduct)
		r.Delete("/{id}", handler.DeleteProduct)
	})

	// Cart, favorites, checkout
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/cart", handler.GetCart)
		r.Post("/cart/{productID}", handler.AddToCart)
		r.Put("/cart/{productID}", handler.SetCartQuantity)
		r.Delete("/cart/{productID}", handler.RemoveFromCart)
		r.Post("/checkout", handler.Checkout)

		r.Get("/favorites", handler.ListFavorites)
		r.Post("/favorites/{productID}", handler.AddFavorite)
		r.Delete("/favorites/{productID}", handler.RemoveFavorite)
	})
}
