package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/middleware"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

// GigRepoForHandler is the gig repository subset the listing endpoints need.
type GigRepoForHandler interface {
	Create(ctx context.Context, g *models.Gig) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	ListByPoster(ctx context.Context, posterID uuid.UUID) ([]*models.Gig, error)
}

// ApplicationRepoForHandler covers applying and listing applicants.
type ApplicationRepoForHandler interface {
	Create(ctx context.Context, a *models.Application) error
	ListByGig(ctx context.Context, gigID uuid.UUID) ([]*models.Application, error)
}

// GigHandler serves the listing and application endpoints.
type GigHandler struct {
	Gigs         GigRepoForHandler
	Applications ApplicationRepoForHandler
	Logger       *slog.Logger
}

type createGigRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	ListingType     string `json:"listing_type"`
	MarketType      string `json:"market_type,omitempty"`
	Price           int64  `json:"price"`
	SecurityDeposit int64  `json:"security_deposit,omitempty"`
}

// CreateGig handles POST /v1/gigs.
func (h *GigHandler) CreateGig(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createGigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "price must be > 0")
		return
	}

	gig := &models.Gig{
		ID:            uuid.New(),
		PosterID:      ident.UserID,
		ListingType:   req.ListingType,
		Title:         req.Title,
		Description:   req.Description,
		Price:         req.Price,
		Status:        models.GigStatusOpen,
		PaymentStatus: models.PaymentStatusPending,
	}

	switch req.ListingType {
	case models.ListingHustle:
		if req.MarketType != "" || req.SecurityDeposit != 0 {
			writeError(w, http.StatusBadRequest, "hustle gigs take no market type or deposit")
			return
		}
	case models.ListingMarket:
		switch req.MarketType {
		case models.MarketSell:
			if req.SecurityDeposit != 0 {
				writeError(w, http.StatusBadRequest, "sale listings take no deposit")
				return
			}
		case models.MarketRent:
			if req.SecurityDeposit < 0 {
				writeError(w, http.StatusBadRequest, "security_deposit must be >= 0")
				return
			}
			gig.SecurityDeposit = req.SecurityDeposit
		default:
			writeError(w, http.StatusBadRequest, "market_type must be SELL or RENT")
			return
		}
		mt := req.MarketType
		gig.MarketType = &mt
	default:
		writeError(w, http.StatusBadRequest, "listing_type must be HUSTLE or MARKET")
		return
	}

	if err := h.Gigs.Create(r.Context(), gig); err != nil {
		h.Logger.Error("create gig", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create gig")
		return
	}
	writeJSON(w, http.StatusCreated, gig)
}

// GetGig handles GET /v1/gigs/{id}.
func (h *GigHandler) GetGig(w http.ResponseWriter, r *http.Request) {
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	gig, err := h.Gigs.GetByID(r.Context(), gigID)
	if err != nil {
		writeError(w, http.StatusNotFound, "gig not found")
		return
	}
	writeJSON(w, http.StatusOK, gig)
}

// ListMyGigs handles GET /v1/gigs — the caller's own listings.
func (h *GigHandler) ListMyGigs(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	gigs, err := h.Gigs.ListByPoster(r.Context(), ident.UserID)
	if err != nil {
		h.Logger.Error("list gigs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if gigs == nil {
		gigs = []*models.Gig{}
	}
	writeJSON(w, http.StatusOK, gigs)
}

type applyRequest struct {
	Message string `json:"message"`
}

// Apply handles POST /v1/gigs/{id}/apply.
func (h *GigHandler) Apply(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	gig, err := h.Gigs.GetByID(r.Context(), gigID)
	if err != nil {
		writeError(w, http.StatusNotFound, "gig not found")
		return
	}
	if gig.Status != models.GigStatusOpen {
		writeError(w, http.StatusConflict, "gig is not open for applications")
		return
	}
	if gig.PosterID == ident.UserID {
		writeError(w, http.StatusForbidden, "cannot apply to your own gig")
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	app := &models.Application{
		ID:       uuid.New(),
		GigID:    gigID,
		WorkerID: ident.UserID,
		Message:  req.Message,
		Status:   models.ApplicationApplied,
	}
	if err := h.Applications.Create(r.Context(), app); err != nil {
		h.Logger.Error("create application", "gig_id", gigID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply")
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// ListApplications handles GET /v1/gigs/{id}/applications — poster only.
func (h *GigHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	gig, err := h.Gigs.GetByID(r.Context(), gigID)
	if err != nil {
		writeError(w, http.StatusNotFound, "gig not found")
		return
	}
	if gig.PosterID != ident.UserID {
		writeError(w, http.StatusForbidden, "only the poster may view applications")
		return
	}
	apps, err := h.Applications.ListByGig(r.Context(), gigID)
	if err != nil {
		h.Logger.Error("list applications", "gig_id", gigID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	writeJSON(w, http.StatusOK, apps)
}

// extractGigID parses the gig UUID from the {id} path segment.
func extractGigID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
