// Package catalog serves the product, cart, favorites, and checkout surface.
package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tinytulsi/mart-backend/internal/api"
	"github.com/tinytulsi/mart-backend/internal/auth"
	appctx "github.com/tinytulsi/mart-backend/internal/context"
	"github.com/tinytulsi/mart-backend/internal/repository"
)

// ProductRequest is the payload for product create and update
type ProductRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	PriceCents  int64  `json:"priceCents" validate:"required,gt=0"`
	Stock       int    `json:"stock" validate:"gte=0"`
}

// ProductResponse is the public shape of a product
type ProductResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"priceCents"`
	Stock       int       `json:"stock"`
	ImageURL    *string   `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CartQuantityRequest is the payload for PUT /cart/{productID}
type CartQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// CartLineResponse is one line of the cart listing
type CartLineResponse struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	PriceCents  int64  `json:"priceCents"`
	Quantity    int    `json:"quantity"`
	Stock       int    `json:"stock"`
}

func newProductResponse(p *repository.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
	}
}

// Handler serves the catalog HTTP surface
type Handler struct {
	repo     repository.ProductRepository
	validate *validator.Validate
}

// NewHandler creates a Handler
func NewHandler(repo repository.ProductRepository) *Handler {
	return &Handler{repo: repo, validate: validator.New()}
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, "Invalid request body", nil)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		details := make(map[string][]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = append(details[fe.Field()], "failed on "+fe.Tag())
			}
		}
		api.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, "Request validation failed", details)
		return false
	}
	return true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, "Invalid product id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		api.WriteError(w, http.StatusNotFound, auth.CodeNotFound, "Product not found", nil)
	case errors.Is(err, repository.ErrCartItemNotFound):
		api.WriteError(w, http.StatusNotFound, auth.CodeNotFound, "Product not found in cart", nil)
	case errors.Is(err, repository.ErrInsufficientStock):
		api.WriteError(w, http.StatusConflict, "INSUFFICIENT_STOCK", "Not enough stock to complete the order", nil)
	default:
		api.WriteError(w, http.StatusInternalServerError, auth.CodeInternalError, "An unexpected error occurred", nil)
	}
}

// ListProducts handles GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, newProductResponse(p))
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"products": resp})
}

// GetProduct handles GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r, "id")
	if !ok {
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"product": newProductResponse(product)})
}

// CreateProduct handles POST /admin/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	product := &repository.Product{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
	}
	if err := h.repo.Create(r.Context(), product); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, map[string]interface{}{"product": newProductResponse(product)})
}

// UpdateProduct handles PUT /admin/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r, "id")
	if !ok {
		return
	}

	var req ProductRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	product.Name = req.Name
	product.Description = req.Description
	product.PriceCents = req.PriceCents
	product.Stock = req.Stock

	if err := h.repo.Update(r.Context(), product); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"product": newProductResponse(product)})
}

// DeleteProduct handles DELETE /admin/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// AddToCart handles POST /cart/{productID}
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r, "productID")
	if !ok {
		return
	}

	if err := h.repo.AddToCart(r.Context(), userID, productID); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Added to cart"})
}

// SetCartQuantity handles PUT /cart/{productID}
func (h *Handler) SetCartQuantity(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r, "productID")
	if !ok {
		return
	}

	var req CartQuantityRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.repo.SetCartQuantity(r.Context(), userID, productID, req.Quantity); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Cart updated"})
}

// RemoveFromCart handles DELETE /cart/{productID}
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r, "productID")
	if !ok {
		return
	}

	if err := h.repo.RemoveFromCart(r.Context(), userID, productID); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Removed from cart"})
}

// GetCart handles GET /cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	lines, err := h.repo.GetCart(r.Context(), userID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	var total int64
	resp := make([]CartLineResponse, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, CartLineResponse{
			ProductID:   line.ProductID.String(),
			ProductName: line.ProductName,
			PriceCents:  line.PriceCents,
			Quantity:    line.Quantity,
			Stock:       line.Stock,
		})
		total += line.PriceCents * int64(line.Quantity)
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"items":      resp,
		"totalCents": total,
	})
}

// Checkout handles POST /checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Checkout(r.Context(), userID); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Order placed"})
}

// AddFavorite handles POST /favorites/{productID}
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r, "productID")
	if !ok {
		return
	}

	if err := h.repo.AddFavorite(r.Context(), userID, productID); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Added to favorites"})
}

// RemoveFavorite handles DELETE /favorites/{productID}
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r, "productID")
	if !ok {
		return
	}

	if err := h.repo.RemoveFavorite(r.Context(), userID, productID); err != nil {
		h.writeRepoError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Removed from favorites"})
}

// ListFavorites handles GET /favorites
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	products, err := h.repo.ListFavorites(r.Context(), userID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, newProductResponse(p))
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"products": resp})
}
