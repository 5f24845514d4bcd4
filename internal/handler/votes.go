package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/premium-ledger/internal/identity"
)

var digitRun = regexp.MustCompile(`\d+`)

// firstNumber возвращает первую последовательность цифр значения поля формы.
func firstNumber(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	m := digitRun.FindString(fmt.Sprint(v))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

type voteResponse struct {
	Spent     int64 `json:"spent"`
	VotesFree int64 `json:"votesFree"`
}

// Vote отдаёт голоса текущего пользователя за задачу.
// Поля issue и votes могут содержать произвольный текст: используется первое число в них.
// Запрос без чисел игнорируется.
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := g.LoadUser(r.Context(), "", false)
	if err != nil {
		h.writeError(w, "load user", err)
		return
	}

	issueID, okIssue := firstNumber(req["issue"])
	count, okVotes := firstNumber(req["votes"])
	if !okIssue || !okVotes {
		writeJSON(w, http.StatusOK, voteResponse{VotesFree: user.VotesFree})
		return
	}

	spent, err := h.ledger.Vote(r.Context(), user, issueID, count)
	if err != nil {
		h.writeError(w, "vote", err)
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{Spent: spent, VotesFree: user.VotesFree})
}

// GetUserVotes возвращает голоса текущего пользователя.
func (h *Handler) GetUserVotes(w http.ResponseWriter, r *http.Request, g *identity.Gate) {
	user, err := g.LoadUser(r.Context(), "", false)
	if err != nil {
		h.writeError(w, "load user", err)
		return
	}

	votes, err := h.ledger.GetUserVotes(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, "get user votes", err)
		return
	}

	if len(votes) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

// GetAllVotes возвращает суммы голосов по задачам; ?limit= ограничивает число строк.
func (h *Handler) GetAllVotes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = n
	}

	votes, err := h.ledger.GetAllVotes(r.Context(), limit)
	if err != nil {
		h.logger.Error("get all votes", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(votes) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}
