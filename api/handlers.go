package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"number-duel-server/gameerrors"
	"number-duel-server/matchmaking"
	"number-duel-server/moves"
	"number-duel-server/reconcile"
	"number-duel-server/storage"
)

const bearerPrefix = "Bearer "

// Tokens is the token surface the API needs. *auth.TokenService implements it.
type Tokens interface {
	Mint(userID int64) (string, error)
	Verify(tokenString string) (int64, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	store      *storage.Store
	matchmaker *matchmaking.Service
	reconciler *reconcile.Reconciler
	tokens     Tokens
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(store *storage.Store, matchmaker *matchmaking.Service, reconciler *reconcile.Reconciler, tokens Tokens) *Handler {
	return &Handler{
		store:      store,
		matchmaker: matchmaker,
		reconciler: reconciler,
		tokens:     tokens,
	}
}

// Routes registers all HTTP handlers on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/token", h.Token)
	mux.HandleFunc("/game/search", h.SearchGame)
	mux.HandleFunc("/game/", h.GameDetails)
	mux.HandleFunc("/moves", h.MakeMove)
}

// CORS sets CORS headers on the response. Call before writing body.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// userID validates the Authorization header and returns the caller's id.
func (h *Handler) userID(r *http.Request) (int64, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return 0, false
	}
	id, err := h.tokens.Verify(strings.TrimSpace(authHeader[len(bearerPrefix):]))
	if err != nil {
		return 0, false
	}
	return id, true
}

// Token upserts the username and issues a token for it.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		http.Error(w, "username query parameter required", http.StatusBadRequest)
		return
	}

	userID, err := h.store.EnsureUser(r.Context(), username)
	if err != nil {
		h.fail(w, err)
		return
	}
	token, err := h.tokens.Mint(userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, map[string]any{"userID": userID, "token": token})
}

// SearchGame assigns the caller to a game, joining a waiting one or creating
// a new one.
func (h *Handler) SearchGame(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.userID(r)
	if !ok {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	var gameID int64
	err := h.store.WithTx(r.Context(), func(ctx context.Context, tx *storage.TxStore) error {
		var err error
		gameID, err = h.matchmaker.SearchGameForUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, map[string]any{"gameID": gameID})
}

// GameDetails serves the read model for /game/{gameID}.
func (h *Handler) GameDetails(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.userID(r); !ok {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	gameID, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/game/"), 10, 64)
	if err != nil || gameID <= 0 {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	details, err := h.store.GameDetails(r.Context(), gameID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, details)
}

// MoveRequest is the body of POST /moves.
type MoveRequest struct {
	Selection int `json:"selection"`
}

// MakeMove records the caller's selection for the current turn of their
// ongoing game, then reconciles the game off the request path.
func (h *Handler) MakeMove(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.userID(r)
	if !ok {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var move *storage.MoveRow
	err := h.store.WithTx(r.Context(), func(ctx context.Context, tx *storage.TxStore) error {
		var err error
		move, err = moves.MakeMove(ctx, tx, userID, req.Selection)
		return err
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	// The move may have completed the turn.
	go h.reconcileAsync(move.GameID)

	details, err := h.store.GameDetails(r.Context(), move.GameID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, details)
}

func (h *Handler) reconcileAsync(gameID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := h.store.WithTx(ctx, func(ctx context.Context, tx *storage.TxStore) error {
		return h.reconciler.UpdateGameState(ctx, tx, gameID)
	})
	if err != nil {
		slog.Error("post-move reconciliation failed", "tag", "api", "game_id", gameID, "error", err)
	}
}

// fail maps domain errors onto HTTP status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gameerrors.ErrSearchInProgress):
		http.Error(w, "a search is already in progress", http.StatusConflict)
	case errors.Is(err, gameerrors.ErrNoActiveGame):
		http.Error(w, "no active game", http.StatusNotFound)
	case errors.Is(err, gameerrors.ErrGameNotFound):
		http.Error(w, "game not found", http.StatusNotFound)
	case errors.Is(err, gameerrors.ErrGameNotInProgress):
		http.Error(w, "game is not in progress", http.StatusConflict)
	case errors.Is(err, gameerrors.ErrTurnExpired):
		http.Error(w, "the turn deadline has passed", http.StatusConflict)
	case errors.Is(err, gameerrors.ErrMoveAlreadyExists):
		http.Error(w, "move already recorded for this turn", http.StatusConflict)
	case errors.Is(err, gameerrors.ErrSelectionOutOfRange):
		http.Error(w, "selection must be between 1 and 9", http.StatusBadRequest)
	case errors.Is(err, gameerrors.ErrSelectionUnavailable):
		http.Error(w, "selection is unavailable this turn", http.StatusUnprocessableEntity)
	default:
		slog.Error("request failed", "tag", "api", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "tag", "api", "error", err)
	}
}
