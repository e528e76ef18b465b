package server

import (
	"io"
	"mime/multipart"
	"net/http"

	"botforge/internal/app"
	"botforge/pkg/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- auth ----

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.SignUp(req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	audit(r, "user_signed_up", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		audit(r, "login_failed")
		writeAppError(w, r, err)
		return
	}
	audit(r, "login_succeeded", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.Logout(bearerToken(r)); err != nil {
		writeAppError(w, r, err)
		return
	}
	audit(r, "user_logged_out", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

// ---- bots ----

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.app.ListBots()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": botsOrEmpty(bots)})
}

func (s *Server) handleMyBots(w http.ResponseWriter, r *http.Request, user domain.User) {
	bots, err := s.app.ListMyBots(user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": botsOrEmpty(bots)})
}

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	bot, err := s.app.GetBot(r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	picture, cleanup, err := optionalFormFile(r, "picture")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid picture upload")
		return
	}
	defer cleanup()

	bot, err := s.app.CreateBot(r.Context(), user.ID,
		r.FormValue("name"), r.FormValue("description"), r.FormValue("priceId"), picture)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteBot(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddTrainingFile(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "a file upload is required")
		return
	}
	defer file.Close()

	key, err := s.app.AddTrainingFile(r.Context(), user.ID, r.PathValue("id"), uploadFrom(file, header))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// ---- chat ----

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request, user domain.User) {
	sess, err := s.app.OpenChat(user.ID, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId":     sess.ID,
		"botId":         sess.Bot.ID,
		"accessGranted": sess.AccessGranted(),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	turn, err := s.app.SendMessage(r.Context(), user.ID, r.PathValue("sid"), req.Text)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	turns, err := s.app.ChatHistory(user.ID, r.PathValue("sid"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.CloseChat(user.ID, r.PathValue("sid")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- subscriptions & billing ----

func (s *Server) handleMySubscriptions(w http.ResponseWriter, r *http.Request, user domain.User) {
	subs, err := s.app.MySubscriptions(user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		BotID string `json:"botId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	url, err := s.app.Checkout(user.ID, req.BotID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read payload")
		return
	}
	event, err := s.billing.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		audit(r, "webhook_signature_rejected")
		writeError(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}
	if err := s.billing.HandleEvent(event); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// ---- helpers ----

func botsOrEmpty(bots []domain.Bot) []domain.Bot {
	if bots == nil {
		return []domain.Bot{}
	}
	return bots
}

func uploadFrom(file multipart.File, header *multipart.FileHeader) app.Upload {
	return app.Upload{
		Reader:      file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
	}
}

// optionalFormFile returns nil when the field is absent.
func optionalFormFile(r *http.Request, field string) (*app.Upload, func(), error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	up := uploadFrom(file, header)
	return &up, func() { file.Close() }, nil
}
