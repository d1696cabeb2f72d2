package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/icl"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
	"github.com/Mindburn-Labs/icl/core/pkg/lifecycle"
)

// maxBodyBytes caps request bodies; ledger operations are small.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a capped JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// actorFor prefers the authenticated subject over the body's actor field.
func actorFor(r *http.Request, bodyActor string) string {
	if a := Actor(r.Context()); a != "" {
		return a
	}
	return bodyActor
}

// parseAmount parses a decimal string; "" yields zero.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed decimal %q", s)
	}
	return d, nil
}

// parseTime parses an RFC 3339 timestamp; "" yields the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q (want RFC 3339)", s)
	}
	return t, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type capitalizeBody struct {
	AssetID          string `json:"asset_id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	Owner            string `json:"owner"`
	Value            string `json:"value"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	UsefulLifeMonths int    `json:"useful_life_months"`
	SalvageValue     string `json:"salvage_value"`
	Actor            string `json:"actor"`
	EffectiveAt      string `json:"effective_at"`
}

func (s *Server) handleCapitalize(w http.ResponseWriter, r *http.Request) {
	var body capitalizeBody
	if err := decodeBody(w, r, &body); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	value, err := parseAmount(body.Value)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	salvage, err := parseAmount(body.SalvageValue)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	effectiveAt, err := parseTime(body.EffectiveAt)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	entry, err := s.ledger.Capitalize(r.Context(), lifecycle.CapitalizeRequest{
		AssetID:          body.AssetID,
		Name:             body.Name,
		Type:             capital.AssetType(body.Type),
		Owner:            body.Owner,
		Value:            value,
		Currency:         body.Currency,
		Method:           capital.DepreciationMethod(body.Method),
		UsefulLifeMonths: body.UsefulLifeMonths,
		SalvageValue:     salvage,
		Actor:            actorFor(r, body.Actor),
		EffectiveAt:      effectiveAt,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.ledger.Assets()
	writeJSON(w, http.StatusOK, map[string]any{
		"assets": assets,
		"count":  len(assets),
	})
}

func (s *Server) handleAssetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.AssetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewOwner    string `json:"new_owner"`
		Actor       string `json:"actor"`
		EffectiveAt string `json:"effective_at"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	effectiveAt, err := parseTime(body.EffectiveAt)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	entry, err := s.ledger.Allocate(r.Context(), lifecycle.AllocateRequest{
		AssetID:     r.PathValue("id"),
		NewOwner:    body.NewOwner,
		Actor:       actorFor(r, body.Actor),
		EffectiveAt: effectiveAt,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleUtilize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount      string `json:"amount"`
		Actor       string `json:"actor"`
		EffectiveAt string `json:"effective_at"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	effectiveAt, err := parseTime(body.EffectiveAt)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	entry, err := s.ledger.Utilize(r.Context(), lifecycle.UtilizeRequest{
		AssetID:     r.PathValue("id"),
		Amount:      amount,
		Actor:       actorFor(r, body.Actor),
		EffectiveAt: effectiveAt,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDepreciate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PeriodStart string `json:"period_start"`
		PeriodEnd   string `json:"period_end"`
		Actor       string `json:"actor"`
		EffectiveAt string `json:"effective_at"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	start, err := parseTime(body.PeriodStart)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	end, err := parseTime(body.PeriodEnd)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	effectiveAt, err := parseTime(body.EffectiveAt)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	entry, err := s.ledger.Depreciate(r.Context(), lifecycle.DepreciateRequest{
		AssetID:     r.PathValue("id"),
		PeriodStart: start,
		PeriodEnd:   end,
		Actor:       actorFor(r, body.Actor),
		EffectiveAt: effectiveAt,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleRetire(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason      string `json:"reason"`
		Actor       string `json:"actor"`
		EffectiveAt string `json:"effective_at"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	effectiveAt, err := parseTime(body.EffectiveAt)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	entry, err := s.ledger.Retire(r.Context(), lifecycle.RetireRequest{
		AssetID:     r.PathValue("id"),
		Reason:      body.Reason,
		Actor:       actorFor(r, body.Actor),
		EffectiveAt: effectiveAt,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleProof answers 200 for any proof that could be generated: an
// invalid proof is a finding, not a request failure.
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.GenerateProof(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleReadRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.Filter{
		AssetID:        q.Get("asset_id"),
		Classification: ledger.Classification(q.Get("classification")),
	}
	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	if raw := q.Get("after_sequence"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			WriteBadRequest(w, r, fmt.Sprintf("malformed after_sequence %q", raw))
			return
		}
		f.AfterSequence = seq
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			WriteBadRequest(w, r, fmt.Sprintf("malformed limit %q", raw))
			return
		}
		f.Limit = limit
	}

	entries, err := s.ledger.ReadRange(r.Context(), f)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ledger.Entry(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason      string `json:"reason"`
		Actor       string `json:"actor"`
		EffectiveAt string `json:"effective_at"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	effectiveAt, err := parseTime(body.EffectiveAt)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	entry, err := s.ledger.Correct(r.Context(), lifecycle.CorrectRequest{
		EntryID:     r.PathValue("id"),
		Reason:      body.Reason,
		Actor:       actorFor(r, body.Actor),
		EffectiveAt: effectiveAt,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := icl.StatementRequest{AssetID: q.Get("asset_id")}
	var err error
	if req.From, err = parseTime(q.Get("from")); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	if req.To, err = parseTime(q.Get("to")); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	rows, err := s.ledger.Statement(r.Context(), req)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":  rows,
		"count": len(rows),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.VerifyIntegrity(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "unreadable body")
		return
	}

	entry, err := s.inbound.Consume(r.Context(), raw)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleAttributionBatch treats per-record failures as data: 207 when
// any record was rejected, 200 when all landed.
func (s *Server) handleAttributionBatch(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "unreadable body")
		return
	}

	result, err := s.inbound.ConsumeBatch(r.Context(), raw)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	status := http.StatusOK
	if len(result.Rejected) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}
