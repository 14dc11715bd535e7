package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quantumshield/internal/app"
	"quantumshield/internal/ratelimit"
	"quantumshield/internal/util"
	"quantumshield/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// SignupLimiter is optional; nil disables rate limiting.
	SignupLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes the HTTP endpoints of the quantum shield backend.
type Server struct {
	app           *app.App
	mux           *http.ServeMux
	signupLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		mux:           http.NewServeMux(),
		signupLimiter: cfg.SignupLimiter,
	}
	s.routes()
	return s
}

// Router returns the configured handler with ambient middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("quantumshield", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// identity & exploration
	s.mux.HandleFunc("/api/users", s.handleUsers)
	s.mux.HandleFunc("/api/users/", s.handleUserByID)
	s.mux.HandleFunc("/api/exploration", s.handleExploration)
	s.mux.HandleFunc("/api/exploration/", s.handleExplorationByUser)

	// quantum registry
	s.mux.HandleFunc("/api/quantum/keys", s.handleKeys)
	s.mux.HandleFunc("/api/quantum/keys/", s.handleKeyPath)
	s.mux.HandleFunc("/api/quantum/ledger", s.handleLedger)
	s.mux.HandleFunc("/api/quantum/ledger/", s.handleLedgerPath)
	s.mux.HandleFunc("/api/quantum/entanglements", s.handleEntanglements)
	s.mux.HandleFunc("/api/quantum/entanglements/", s.handleEntanglementPath)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/users
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many registration attempts") {
		return
	}
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var errs []fieldError
	errs = requireString(errs, "username", req.Username)
	errs = requireString(errs, "password", req.Password)
	if len(errs) > 0 {
		writeValidationError(w, "Invalid user data", errs)
		return
	}
	user, err := s.app.CreateUser(req.Username, req.Password)
	if err != nil {
		s.writeAppError(w, r, err, "Error creating user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// PUT /api/users/{id}
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	rawID := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if rawID == "" || strings.Contains(rawID, "/") {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.Atoi(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	var req updateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CipherName == nil && req.ResonanceCode == nil {
		writeValidationError(w, "Invalid user data", []fieldError{
			{Field: "cipherName", Message: "cipherName or resonanceCode is required"},
		})
		return
	}
	user, err := s.app.UpdateUser(id, domain.UserUpdate{
		CipherName:    req.CipherName,
		ResonanceCode: req.ResonanceCode,
	})
	if err != nil {
		s.writeAppError(w, r, err, "Error updating user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// POST /api/exploration
func (s *Server) handleExploration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req explorationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var errs []fieldError
	errs = requireString(errs, "userId", req.UserID)
	errs = requireString(errs, "cipherInput", req.CipherInput)
	errs = requireString(errs, "sectionExplored", req.SectionExplored)
	if len(errs) > 0 {
		writeValidationError(w, "Invalid exploration data", errs)
		return
	}
	entry, err := s.app.RecordExploration(domain.NewExploration{
		UserID:          req.UserID,
		CipherInput:     req.CipherInput,
		SectionExplored: req.SectionExplored,
	})
	if err != nil {
		s.writeAppError(w, r, err, "Error saving exploration data")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// GET /api/exploration/{userId}
func (s *Server) handleExplorationByUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/api/exploration/")
	if userID == "" || strings.Contains(userID, "/") {
		http.NotFound(w, r)
		return
	}
	entries, err := s.app.ExplorationByUser(userID)
	if err != nil {
		s.writeAppError(w, r, err, "Error retrieving exploration data")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// POST /api/quantum/keys
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req createKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var errs []fieldError
	if req.UserID == nil || *req.UserID <= 0 {
		errs = append(errs, fieldError{Field: "userId", Message: "userId must be a positive integer"})
	}
	errs = requireDecimal(errs, "entropyLevel", req.EntropyLevel)
	errs = requireString(errs, "superpositionState", req.SuperpositionState)
	if len(errs) > 0 {
		writeValidationError(w, "Invalid quantum key data", errs)
		return
	}
	key, err := s.app.CreateKey(*req.UserID, req.KeyID, req.EntropyLevel, req.SuperpositionState)
	if err != nil {
		s.writeAppError(w, r, err, "Error creating quantum key")
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// GET /api/quantum/keys/{keyId}
// GET /api/quantum/keys/user/{userId}
// PUT /api/quantum/keys/{keyId}/revoke
func (s *Server) handleKeyPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/quantum/keys/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	if parts[0] == "user" && len(parts) == 2 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		userID, err := strconv.Atoi(parts[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user ID")
			return
		}
		keys, kerr := s.app.KeysByUser(userID)
		if kerr != nil {
			s.writeAppError(w, r, kerr, "Error retrieving quantum keys")
			return
		}
		writeJSON(w, http.StatusOK, keys)
		return
	}

	if len(parts) == 2 {
		if parts[1] != "revoke" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		key, err := s.app.RevokeKey(parts[0])
		if err != nil {
			s.writeAppError(w, r, err, "Error revoking quantum key")
			return
		}
		writeJSON(w, http.StatusOK, key)
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	key, err := s.app.KeyByID(parts[0])
	if err != nil {
		s.writeAppError(w, r, err, "Error retrieving quantum key")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// POST /api/quantum/ledger
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req ledgerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var errs []fieldError
	errs = requireString(errs, "keyId", req.KeyID)
	errs = requireString(errs, "operationType", req.OperationType)
	errs = requireString(errs, "entanglementHash", req.EntanglementHash)
	if req.TimestampVector == nil {
		errs = append(errs, fieldError{Field: "timestampVector", Message: "timestampVector must be a JSON object"})
	}
	if len(errs) > 0 {
		writeValidationError(w, "Invalid quantum ledger data", errs)
		return
	}
	entry, err := s.app.RecordOperation(domain.NewLedgerEntry{
		TransactionID:    req.TransactionID,
		KeyID:            req.KeyID,
		OperationType:    req.OperationType,
		TimestampVector:  req.TimestampVector,
		EntanglementHash: req.EntanglementHash,
		Metadata:         req.Metadata,
	})
	if err != nil {
		s.writeAppError(w, r, err, "Error recording quantum operation")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// GET /api/quantum/ledger/key/{keyId}
// GET /api/quantum/ledger/{transactionId}
func (s *Server) handleLedgerPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/quantum/ledger/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	if parts[0] == "key" && len(parts) == 2 {
		entries, err := s.app.LedgerByKey(parts[1])
		if err != nil {
			s.writeAppError(w, r, err, "Error retrieving quantum ledger entries")
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	if len(parts) == 2 {
		http.NotFound(w, r)
		return
	}
	entry, err := s.app.LedgerEntry(parts[0])
	if err != nil {
		s.writeAppError(w, r, err, "Error retrieving quantum ledger entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// POST /api/quantum/entanglements
func (s *Server) handleEntanglements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req entanglementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var errs []fieldError
	errs = requireString(errs, "sourceKeyId", req.SourceKeyID)
	errs = requireString(errs, "targetKeyId", req.TargetKeyID)
	errs = requireString(errs, "entanglementType", req.EntanglementType)
	errs = requireDecimal(errs, "entanglementStrength", req.EntanglementStrength)
	if req.StateVector == nil {
		errs = append(errs, fieldError{Field: "stateVector", Message: "stateVector must be a JSON object"})
	}
	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, perr := time.Parse(time.RFC3339, req.ExpiresAt)
		if perr != nil {
			errs = append(errs, fieldError{Field: "expiresAt", Message: "expiresAt must be an RFC 3339 timestamp"})
		} else {
			expiresAt = &parsed
		}
	}
	if len(errs) > 0 {
		writeValidationError(w, "Invalid quantum entanglement data", errs)
		return
	}
	ent, err := s.app.CreateEntanglement(domain.NewEntanglement{
		SourceKeyID:          req.SourceKeyID,
		TargetKeyID:          req.TargetKeyID,
		EntanglementType:     req.EntanglementType,
		EntanglementStrength: req.EntanglementStrength,
		StateVector:          req.StateVector,
		ExpiresAt:            expiresAt,
	})
	if err != nil {
		s.writeAppError(w, r, err, "Error creating quantum entanglement")
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

// GET /api/quantum/entanglements/key/{keyId}
// GET /api/quantum/entanglements/key/{keyId}/entangled
func (s *Server) handleEntanglementPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/quantum/entanglements/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] != "key" || parts[1] == "" {
		http.NotFound(w, r)
		return
	}
	keyID := parts[1]

	if len(parts) == 3 && parts[2] == "entangled" {
		ids, err := s.app.EntangledKeyIDs(keyID)
		if err != nil {
			s.writeAppError(w, r, err, "Error retrieving entangled keys")
			return
		}
		writeJSON(w, http.StatusOK, ids)
		return
	}
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	entanglements, err := s.app.EntanglementsByKey(keyID)
	if err != nil {
		s.writeAppError(w, r, err, "Error retrieving quantum entanglements")
		return
	}
	writeJSON(w, http.StatusOK, entanglements)
}

// request payloads

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	CipherName    *string `json:"cipherName"`
	ResonanceCode *string `json:"resonanceCode"`
}

type explorationRequest struct {
	UserID          string `json:"userId"`
	CipherInput     string `json:"cipherInput"`
	SectionExplored string `json:"sectionExplored"`
}

type createKeyRequest struct {
	UserID             *int   `json:"userId"`
	KeyID              string `json:"keyId"`
	EntropyLevel       string `json:"entropyLevel"`
	SuperpositionState string `json:"superpositionState"`
}

type ledgerRequest struct {
	KeyID            string         `json:"keyId"`
	OperationType    string         `json:"operationType"`
	TimestampVector  map[string]any `json:"timestampVector"`
	EntanglementHash string         `json:"entanglementHash"`
	TransactionID    string         `json:"transactionId"`
	Metadata         map[string]any `json:"metadata"`
}

type entanglementRequest struct {
	SourceKeyID          string         `json:"sourceKeyId"`
	TargetKeyID          string         `json:"targetKeyId"`
	EntanglementType     string         `json:"entanglementType"`
	EntanglementStrength string         `json:"entanglementStrength"`
	StateVector          map[string]any `json:"stateVector"`
	ExpiresAt            string         `json:"expiresAt"`
}

// helpers

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func requireString(errs []fieldError, field, value string) []fieldError {
	if strings.TrimSpace(value) == "" {
		errs = append(errs, fieldError{Field: field, Message: field + " is required"})
	}
	return errs
}

func requireDecimal(errs []fieldError, field, value string) []fieldError {
	if strings.TrimSpace(value) == "" {
		return append(errs, fieldError{Field: field, Message: field + " is required"})
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return append(errs, fieldError{Field: field, Message: field + " must be a decimal number"})
	}
	return errs
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, app.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "Quantum key not found")
	case errors.Is(err, app.ErrKeyRevoked):
		writeError(w, http.StatusForbidden, "Quantum key has been revoked")
	case errors.Is(err, app.ErrKeyIDTaken):
		writeError(w, http.StatusConflict, "Key ID already exists")
	case errors.Is(err, app.ErrTransactionIDTaken):
		writeError(w, http.StatusConflict, "Transaction ID already exists")
	case errors.Is(err, app.ErrLedgerEntryNotFound):
		writeError(w, http.StatusNotFound, "Quantum ledger entry not found")
	case errors.Is(err, app.ErrSourceKeyNotFound):
		writeError(w, http.StatusNotFound, "Source quantum key not found")
	case errors.Is(err, app.ErrTargetKeyNotFound):
		writeError(w, http.StatusNotFound, "Target quantum key not found")
	case errors.Is(err, app.ErrEntangleRevokedKey):
		writeError(w, http.StatusForbidden, "Cannot entangle revoked quantum keys")
	default:
		util.LoggerFromContext(r.Context()).Error("internal error",
			"err", err,
			"path", r.URL.Path,
			"method", r.Method,
		)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	slog.Warn("rate_limited", "path", r.URL.Path, "ip", util.ClientIP(r))
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeValidationError(w http.ResponseWriter, msg string, errs []fieldError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"message": msg,
		"errors":  errs,
	})
}
