package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hollybrook/storefront/internal/auth"
	"github.com/hollybrook/storefront/internal/catalog"
)

// AdminHandler exposes the trusted catalog write path. Everything behind it
// assumes RequireAdmin already ran.
type AdminHandler struct {
	Catalog *catalog.Repo
	Auth    *auth.AdminAuth
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.Auth.RequireAdmin)
		r.Post("/products", h.createProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Put("/variants/{id}/inventory", h.setInventory)
	})
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.CreateProduct(ctx, in)
	if errors.Is(err, catalog.ErrSlugTaken) {
		writeError(w, http.StatusConflict, "a product with this name already exists")
		return
	}
	if err != nil {
		log.Printf("create product: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Catalog.UpdateProduct(ctx, chi.URLParam(r, "id"), in)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		log.Printf("update product: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (h *AdminHandler) setInventory(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Catalog.SetVariantInventory(ctx, chi.URLParam(r, "id"), in.Quantity)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		log.Printf("set inventory: %v", err)
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}
