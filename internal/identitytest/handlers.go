package identitytest

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/aussiebroadwan/brewhouse/pkg/cryptox"
	"github.com/aussiebroadwan/brewhouse/pkg/httpx"
	"github.com/aussiebroadwan/brewhouse/pkg/idx"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
)

var reEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

func (s *Server) handleLivez(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	switch {
	case strings.TrimSpace(req.Name) == "" || req.Email == "" || req.Password == "":
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "Name, email and password are required")
		return
	case !reEmail.MatchString(req.Email):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_email", "Invalid email address")
		return
	case len(req.Password) < 8:
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[strings.ToLower(req.Email)]; exists {
		s.mu.Unlock()
		httpx.WriteError(w, http.StatusConflict, "email_in_use", "Email already in use")
		return
	}
	acc := s.createAccountLocked(strings.TrimSpace(req.Name), req.Email, req.Password)
	opaque, err := s.issueTicketLocked(acc.ID)
	s.mu.Unlock()
	if err != nil {
		log.Error("failed to issue renewal ticket", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Registration failed")
		return
	}

	s.respondWithSession(w, r, http.StatusCreated, acc.User, opaque)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	if !ok || acc.password != req.Password {
		s.mu.Unlock()
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}
	opaque, err := s.issueTicketLocked(acc.ID)
	s.mu.Unlock()
	if err != nil {
		log.Error("failed to issue renewal ticket", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Login failed")
		return
	}

	s.respondWithSession(w, r, http.StatusOK, acc.User, opaque)
}

func (s *Server) respondWithSession(w http.ResponseWriter, r *http.Request, status int, u User, opaque string) {
	access, err := s.signAccess(u, s.cfg.Now(), s.cfg.AccessTTL)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to sign access token", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Could not issue token")
		return
	}

	s.setTicketCookie(w, opaque)
	httpx.WriteJSON(w, status, authResponse{Success: true, AccessToken: access, User: u})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	s.mu.Lock()
	acc, ok := s.byID[userID]
	s.mu.Unlock()
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}

	if s.cfg.BareUser {
		httpx.WriteJSON(w, http.StatusOK, acc.User)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": acc.User})
}

// handleRefresh exchanges the renewal ticket cookie for a new access token
// and rotates the ticket.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	cookie, err := r.Cookie(TicketCookie)
	if err != nil || cookie.Value == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "no_session", "No refresh token")
		return
	}

	fp := cryptox.FingerprintToken(cookie.Value)

	s.mu.Lock()
	t, ok := s.tickets[fp]
	if ok {
		// Single use: the presented ticket is gone whatever happens next.
		delete(s.tickets, fp)
	}
	if !ok || s.cfg.Now().After(t.expiresAt) {
		s.mu.Unlock()
		clearTicketCookie(w)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired refresh token")
		return
	}
	acc, ok := s.byID[t.userID]
	if !ok {
		s.mu.Unlock()
		clearTicketCookie(w)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired refresh token")
		return
	}
	opaque, err := s.issueTicketLocked(acc.ID)
	s.mu.Unlock()
	if err != nil {
		log.Error("failed to rotate renewal ticket", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Refresh failed")
		return
	}

	access, err := s.signAccess(acc.User, s.cfg.Now(), s.cfg.AccessTTL)
	if err != nil {
		log.Error("failed to sign access token", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Refresh failed")
		return
	}

	s.setTicketCookie(w, opaque)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "accessToken": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(TicketCookie); err == nil && cookie.Value != "" {
		s.mu.Lock()
		delete(s.tickets, cryptox.FingerprintToken(cookie.Value))
		s.mu.Unlock()
	}

	clearTicketCookie(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	s.mu.Lock()
	orders := append([]Order{}, s.orders[userID]...)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())

	var req struct {
		Items []string `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "An order needs at least one item")
		return
	}

	order := Order{ID: idx.New().String(), Items: req.Items}

	s.mu.Lock()
	s.orders[userID] = append(s.orders[userID], order)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusCreated, order)
}
