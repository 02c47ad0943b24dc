package httpapi

import (
	"errors"
	"net/http"

	otcAuth "github.com/MrEthical07/otcAuth"
	"github.com/MrEthical07/otcAuth/middleware"
	"github.com/MrEthical07/otcAuth/otc"
)

type userView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Confirmed bool   `json:"is_confirmed"`
}

func viewOf(u otcAuth.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Confirmed: u.Confirmed}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type registerResponse struct {
	userView
	OTCSent bool `json:"otc_sent"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.engine.Register(r.Context(), otcAuth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil && user == nil {
		s.writeEngineError(w, r, err)
		return
	}
	// The account exists even when the confirmation mail failed; the
	// client can ask for a new code.
	writeJSON(w, http.StatusCreated, registerResponse{userView: viewOf(*user), OTCSent: err == nil})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.ResendConfirmation(r.Context(), req.Email); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.engine.GetUser(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*user))
}

type updateRequest struct {
	Name            *string `json:"name"`
	Phone           *string `json:"phone"`
	Email           *string `json:"email"`
	EmailConfirm    *string `json:"email_confirm"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"password_confirm"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.UpdateAccount(r.Context(), middleware.UserIDFromContext(r.Context()), otcAuth.AccountUpdate{
		Name:            req.Name,
		Phone:           req.Phone,
		Email:           req.Email,
		EmailConfirm:    req.EmailConfirm,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	if res.OTCSent {
		writeJSON(w, http.StatusAccepted, map[string]bool{"otc_sent": true})
		return
	}
	if res.AccessToken != "" {
		middleware.SetBearer(w, s.engine, res.AccessToken)
	}
	writeJSON(w, http.StatusOK, viewOf(res.User))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RequestDeletion(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RedeemOTC(r.Context(), r.URL.Query().Get("otc"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	switch res.Action {
	case otc.ActionUpdateAccount:
		if res.AccessToken != "" {
			middleware.SetBearer(w, s.engine, res.AccessToken)
		}
	case otc.ActionDeleteAccount:
		middleware.ClearSession(w, s.engine)
	}
	writeJSON(w, http.StatusOK, map[string]string{"action": string(res.Action)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	middleware.SetSession(w, s.engine, res.AccessToken, res.RefreshToken)
	writeJSON(w, http.StatusOK, viewOf(res.User))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if c, err := r.Cookie(middleware.RefreshCookie); err == nil {
		refresh = c.Value
	}

	if err := s.engine.Logout(r.Context(), middleware.UserIDFromContext(r.Context()), refresh); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	middleware.ClearSession(w, s.engine)
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh forces a rotation even when the bearer is still valid.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if c, err := r.Cookie(middleware.RefreshCookie); err == nil {
		refresh = c.Value
	}

	res, err := s.engine.Authenticate(r.Context(), "", refresh)
	if err != nil {
		if errors.Is(err, otcAuth.ErrRefreshRevoked) {
			middleware.ClearSession(w, s.engine)
		}
		s.writeEngineError(w, r, err)
		return
	}

	middleware.SetSession(w, s.engine, res.AccessToken, res.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]int64{"id": res.UserID})
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetConfirmRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := r.URL.Query().Get("token")
	if err := s.engine.ConfirmPasswordReset(r.Context(), token, req.Password, req.PasswordConfirm); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
