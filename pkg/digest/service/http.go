package service

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	apphttp "github.com/chainsafe/mintwatch/pkg/app/http"
	"github.com/chainsafe/mintwatch/pkg/digest"
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the digest endpoints on r.
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Get("/digest/{guildID}/summary", apphttp.HandleError(h.summary))
	r.Post("/digest/{guildID}/run", apphttp.HandleError(h.run))
	r.Post("/digest/events", apphttp.HandleError(h.ingest))
}

// SummaryResponse is the JSON view of a digest summary.
type SummaryResponse struct {
	GuildID     string    `json:"guild_id"`
	WindowHours int       `json:"window_hours"`
	GeneratedAt time.Time `json:"generated_at"`
	Mints       int       `json:"mints"`
	Sales       int       `json:"sales"`
	VolumeETH   string    `json:"volume_eth"`
	VolumeUSD   string    `json:"volume_usd"`
	TopContract string    `json:"top_contract"`
	TopSale     string    `json:"top_sale"`
	Chains      string    `json:"chains"`
	Recent      []string  `json:"recent_sales"`
}

func toResponse(sum *digest.Summary) *SummaryResponse {
	return &SummaryResponse{
		GuildID:     sum.GuildID,
		WindowHours: sum.WindowHours,
		GeneratedAt: sum.GeneratedAt,
		Mints:       sum.MintCount,
		Sales:       sum.SaleCount,
		VolumeETH:   sum.TotalETH.String(),
		VolumeUSD:   sum.TotalUSD.StringFixed(2),
		TopContract: sum.TopContractDisplay(),
		TopSale:     sum.TopSaleDisplay(),
		Chains:      sum.ChainsDisplay(),
		Recent:      sum.RecentSales,
	}
}

func hoursParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return 0, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.BadRequestError(err, "hours must be an integer")
	}
	return hours, nil
}

func (h *HTTP) summary(w http.ResponseWriter, r *http.Request) error {
	hours, err := hoursParam(r)
	if err != nil {
		return err
	}
	sum, err := h.service.Summary(r.Context(), chi.URLParam(r, "guildID"), hours)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toResponse(sum))
	return nil
}

func (h *HTTP) run(w http.ResponseWriter, r *http.Request) error {
	hours, err := hoursParam(r)
	if err != nil {
		return err
	}
	sum, err := h.service.Run(r.Context(), chi.URLParam(r, "guildID"), hours)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toResponse(sum))
	return nil
}

func (h *HTTP) ingest(w http.ResponseWriter, r *http.Request) error {
	// token ids and amounts can exceed float64 precision
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}

	inserted, err := h.service.Ingest(r.Context(), fields)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	apphttp.WriteJSON(w, status, map[string]bool{"inserted": inserted})
	return nil
}
