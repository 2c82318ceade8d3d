package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/utils"
)

const contentTypeJSON = "application/json"

type claimBody struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type userTokenBody struct {
	Email       string      `json:"email"`
	FirstName   string      `json:"firstName"`
	Login       string      `json:"login"`
	NomeEmpresa string      `json:"nomeEmpresa"`
	Claims      []claimBody `json:"claims"`
}

type tokenBody struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int           `json:"expiresIn"`
	UserToken    userTokenBody `json:"userToken"`
}

// dataBody wraps every successful response the way the backend does.
type dataBody struct {
	Data any `json:"data"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Identifier string `json:"identifier"`
			Secret     string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		account, err := s.accounts.GetByIdentifier(req.Identifier)
		if err != nil || !CheckPasswordHash(req.Secret, account.PasswordHash) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if account.Blocked {
			writeError(w, http.StatusForbidden, "account blocked")
			return
		}
		s.writeTokens(w, account)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refresh token required")
			return
		}

		accountID, err := s.tokens.Redeem(req.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		account, err := s.accounts.GetByID(accountID)
		if err != nil || account.Blocked {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		s.writeTokens(w, account)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.tokens.Revoke(claimsFrom(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, s.keys.JWKS())
	}
}

func (s *Server) ListTicketsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("pageSize"))
		writeJSON(w, http.StatusOK, dataBody{Data: s.board.List(page, pageSize, q.Get("title"), q.Get("description"))})
	}
}

func (s *Server) GetTicketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid ticket id")
			return
		}
		t, err := s.board.Get(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dataBody{Data: t})
	}
}

func (s *Server) CreateTicketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title       string `json:"title"`
			Titulo      string `json:"titulo"`
			Description string `json:"description"`
			Descricao   string `json:"descricao"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t, err := s.board.Create(utils.FirstNonEmpty(req.Title, req.Titulo), utils.FirstNonEmpty(req.Description, req.Descricao))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, dataBody{Data: t})
	}
}

func (s *Server) SetStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid ticket id")
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t, err := s.board.SetStatus(id, req.Status)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dataBody{Data: t})
	}
}

func (s *Server) writeTokens(w http.ResponseWriter, account *Account) {
	issued, err := s.tokens.Issue(account)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue tokens")
		writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	claims := make([]claimBody, 0, len(account.Roles))
	for _, role := range account.Roles {
		claims = append(claims, claimBody{Type: "role", Value: role})
	}
	writeJSON(w, http.StatusOK, dataBody{Data: tokenBody{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresIn:    issued.ExpiresIn,
		UserToken: userTokenBody{
			Email:       account.Email,
			FirstName:   account.FirstName,
			Login:       account.Login,
			NomeEmpresa: account.Company,
			Claims:      claims,
		},
	}})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
