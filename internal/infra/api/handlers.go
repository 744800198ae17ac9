package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/infra/logging"
	red "reparaturbonus/internal/infra/redis"
	"reparaturbonus/internal/usecase"
)

const proofField = "residenceProof"

type createRequest struct {
	ShopID      string  `json:"shopId"`
	OrderID     string  `json:"orderId"`
	RepairCost  float64 `json:"repairCost"`
	Description string  `json:"description"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type listResponse struct {
	Items []*model.BonusCode `json:"items"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if p == nil {
		writeError(w, r, s.log, domain.ErrUnauthorized)
		return
	}
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	c, err := s.bonus.Create(r.Context(), p, usecase.CreateBonusCodeInput{
		ShopID:      req.ShopID,
		OrderID:     req.OrderID,
		RepairCost:  req.RepairCost,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	codes, err := s.bonus.ListMine(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if codes == nil {
		codes = []*model.BonusCode{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: codes})
}

// handleGet serves both the open verifier lookup (?verify=true) and the
// authenticated owner view.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if verify, _ := strconv.ParseBool(r.URL.Query().Get("verify")); verify {
		if !s.allow(w, r, routeVerify) {
			return
		}
		v, err := s.bonus.Verify(r.Context(), code)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
		return
	}

	v, err := s.bonus.Get(r.Context(), PrincipalFrom(r.Context()), code)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if p == nil {
		writeError(w, r, s.log, domain.ErrUnauthorized)
		return
	}
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	c, err := s.bonus.ApplyAction(r.Context(), p, chi.URLParam(r, "code"), req.Action)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, routeRedeem) {
		return
	}
	proof, file, err := s.readProof(w, r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if file != nil {
		defer file.Close()
	}

	c, err := s.bonus.Redeem(r.Context(), chi.URLParam(r, "code"), proof)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// readProof returns nil evidence when the form or the file part is absent so
// that code lookups are reported before the missing file.
func (s *Server) readProof(w http.ResponseWriter, r *http.Request) (*usecase.Evidence, multipart.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, domain.ErrEvidenceTooLarge
		}
		return nil, nil, nil
	}
	file, hdr, err := r.FormFile(proofField)
	if err != nil {
		return nil, nil, nil
	}
	return &usecase.Evidence{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        file,
	}, file, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Summary(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// allow applies the per-client limit for route; limiter failures fail open.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, route string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), red.ClientRouteKey(clientID(r, s.opts.TrustedProxies), route))
	if err != nil {
		if s.log != nil {
			l := logging.With(r.Context(), s.log)
			l.Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
		}
		return true
	}
	if !ok {
		writeError(w, r, s.log, domain.ErrRateLimited)
		return false
	}
	return true
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body is required", domain.ErrInvalidArgument)
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidArgument)
	}
	return nil
}
