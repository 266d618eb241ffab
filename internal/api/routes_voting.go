package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/electcore/electcore/internal/audit"
	"github.com/electcore/electcore/internal/elections"
	"github.com/electcore/electcore/internal/platform/httpx"
	"github.com/electcore/electcore/internal/shared"
	"github.com/electcore/electcore/internal/voting"
)

func (h *Handler) activeElections(w http.ResponseWriter, r *http.Request) {
	if _, err := principalFrom(r); err != nil {
		h.fail(w, r, "active elections", err)
		return
	}
	list, err := h.deps.Elections.ListActive(r.Context(), h.now())
	if err != nil {
		h.fail(w, r, "active elections", err)
		return
	}
	if list == nil {
		list = []elections.Election{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) candidates(w http.ResponseWriter, r *http.Request) {
	if _, err := principalFrom(r); err != nil {
		h.fail(w, r, "candidates", err)
		return
	}
	electionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "candidates", err)
		return
	}
	if _, err := h.deps.Elections.Get(r.Context(), electionID); err != nil {
		h.fail(w, r, "candidates", err)
		return
	}
	list, err := h.deps.Elections.Candidates(r.Context(), electionID)
	if err != nil {
		h.fail(w, r, "candidates", err)
		return
	}
	if list == nil {
		list = []elections.Candidate{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

type castRequest struct {
	CandidateID int64 `json:"candidate_id" validate:"required,gt=0"`
}

func (h *Handler) castVote(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "cast vote", err)
		return
	}
	electionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "cast vote", err)
		return
	}
	var req castRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "cast vote", err)
		return
	}
	voteID, err := h.deps.Voting.Cast(r.Context(), principal, electionID, req.CandidateID)
	if err != nil {
		h.fail(w, r, "cast vote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"vote_id": voteID})
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "results", err)
		return
	}
	electionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "results", err)
		return
	}
	rows, err := h.deps.Voting.ResultsFor(r.Context(), principal, electionID)
	if err != nil {
		h.fail(w, r, "results", err)
		return
	}
	if rows == nil {
		rows = []voting.TallyRow{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"election_id": electionID, "results": rows})
}

func (h *Handler) trail(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		h.fail(w, r, "audit trail", err)
		return
	}
	filters, err := parseTrailFilters(r)
	if err != nil {
		h.fail(w, r, "audit trail", err)
		return
	}
	result, err := h.deps.Trail.Trail(r.Context(), principal, filters)
	if err != nil {
		h.fail(w, r, "audit trail", err)
		return
	}
	if result.Rows == nil {
		result.Rows = []audit.TrailRow{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseTrailFilters(r *http.Request) (audit.TrailFilters, error) {
	var f audit.TrailFilters
	q := r.URL.Query()
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.TrailFilters{}, fmt.Errorf("%w: %s must be RFC3339", shared.ErrValidation, name)
		}
		*dst = t
	}
	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		return audit.TrailFilters{}, err
	}
	if f.PageSize, err = queryInt(r, "page_size"); err != nil {
		return audit.TrailFilters{}, err
	}
	userID, err := queryInt(r, "user_id")
	if err != nil {
		return audit.TrailFilters{}, err
	}
	f.UserID = int64(userID)
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return audit.TrailFilters{}, fmt.Errorf("%w: to before from", shared.ErrValidation)
	}
	return f, nil
}
