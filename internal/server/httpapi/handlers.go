package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type quoteResponse struct {
	From    models.Program  `json:"from"`
	To      models.Program  `json:"to"`
	Amount  decimal.Decimal `json:"amount"`
	Fee     decimal.Decimal `json:"fee"`
	Credit  decimal.Decimal `json:"credit"`
	Details any             `json:"details"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.pair(w, chi.URLParam(r, "from"), chi.URLParam(r, "to"))
	if !ok {
		return
	}
	rate, err := s.deps.Rates.Resolve(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := s.pair(w, q.Get("from"), q.Get("to"))
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid amount"})
		return
	}
	tier := models.TierStandard
	if t := q.Get("tier"); t != "" {
		if tier, err = models.ParseTier(t); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	credit, details, err := s.deps.Quotes.Quote(r.Context(), tier, from, to, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		From:    from,
		To:      to,
		Amount:  amount,
		Fee:     amount.Sub(details.NetAmount),
		Credit:  credit,
		Details: details,
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// user ids are UUIDs; anything else cannot name a user
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, r, common.ErrUserNotFound)
		return
	}
	stats, err := s.deps.Users.Stats(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from, to models.Program
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = models.ParseProgram(v); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = models.ParseProgram(v); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
	}

	offers, err := s.deps.Offers.ListOpenOffers(r.Context(), from, to, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if offers == nil {
		offers = []*models.TradeOffer{}
	}
	writeJSON(w, http.StatusOK, offers)
}

func (s *Server) pair(w http.ResponseWriter, from, to string) (models.Program, models.Program, bool) {
	f, err := models.ParseProgram(from)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return "", "", false
	}
	t, err := models.ParseProgram(to)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return "", "", false
	}
	return f, t, true
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, common.ErrSameProgram),
		errors.Is(err, common.ErrUnsupportedProgram),
		errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUserNotFound),
		errors.Is(err, common.ErrRateNotFound),
		errors.Is(err, common.ErrOfferNotFound),
		errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
