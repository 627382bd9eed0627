package server

import (
	"chat-bridge/internal/entity"
	"chat-bridge/pkg/apperr"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	defaultChatsLimit = 50
	maxChatsLimit     = 200
	maxBodyBytes      = 20 << 20
)

type chatRequest struct {
	Message     string `json:"message"`
	ChatID      string `json:"chat_id,omitempty"`
	ImagePath   string `json:"image_path,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

type chatResponse struct {
	Status   string `json:"status"`
	ChatID   string `json:"chat_id,omitempty"`
	Response string `json:"response,omitempty"`
	Partial  bool   `json:"partial,omitempty"`
	Error    string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, chatID string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}

	writeJSON(w, status, chatResponse{Status: statusError, ChatID: chatID, Error: messageFor(err)})
}

// statusFor maps the error taxonomy onto HTTP. UI-variance outcomes are a
// completed request with status "error" in the body.
func statusFor(err error) int {
	if apperr.IsCapability(err) {
		return http.StatusBadGateway
	}

	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeUnavailable, apperr.CodeTimeout, apperr.CodeBrowserNotReady:
		return http.StatusServiceUnavailable
	case apperr.CodeInputNotFound, apperr.CodeSubmissionAmbiguous, apperr.CodeCompletionTimeout,
		apperr.CodeExtractionEmpty, apperr.CodeElementNotFound, apperr.CodeActionFailed:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	if apperr.IsCapability(err) {
		return "browser connection lost"
	}

	switch apperr.CodeOf(err) {
	case apperr.CodeInputNotFound:
		return "chat input not found"
	case apperr.CodeSubmissionAmbiguous:
		return "failed to send message to the UI"
	case apperr.CodeCompletionTimeout:
		return "no response before timeout"
	case apperr.CodeExtractionEmpty:
		return "empty response"
	case apperr.CodeUnavailable, apperr.CodeTimeout, apperr.CodeBrowserNotReady:
		return "no chat session available, try again later"
	default:
		return err.Error()
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat bridge API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	const op = "HandleChat"

	var req chatRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, "", apperr.InvalidReqError(op, "body", err))

		return
	}

	if req.ImagePath != "" && req.ImageBase64 != "" {
		s.writeError(w, req.ChatID, apperr.InvalidReqError(op, "image",
			errors.New("image_path and image_base64 are mutually exclusive")))

		return
	}

	turnReq := entity.TurnRequest{ChatID: req.ChatID, Text: req.Message, ImagePath: req.ImagePath}

	if req.ImageBase64 != "" {
		path, err := writeUpload(req.ImageBase64)
		if err != nil {
			s.writeError(w, req.ChatID, apperr.InvalidReqError(op, "image_base64", err))

			return
		}
		defer os.Remove(path)

		turnReq.ImagePath = path
		turnReq.ImageTemporary = true
	}

	turn, err := s.chat.Turn(r.Context(), turnReq)
	if err != nil {
		chatID := req.ChatID
		if turn != nil {
			chatID = turn.ChatID
		}

		s.writeError(w, chatID, err)

		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Status:   statusSuccess,
		ChatID:   turn.ChatID,
		Response: turn.Response,
		Partial:  turn.Partial,
	})
}

// writeUpload decodes a base64 image, with or without a data URL prefix,
// into a temp file and returns its path.
func writeUpload(encoded string) (string, error) {
	ext := ".png"

	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return "", errors.New("malformed data URL")
		}

		if mime, _, _ := strings.Cut(header, ";"); strings.HasPrefix(mime, "image/") {
			ext = "." + strings.TrimPrefix(mime, "image/")
		}

		encoded = data
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	if len(raw) == 0 {
		return "", errors.New("image is empty")
	}

	f, err := os.CreateTemp("", "chat-upload-*"+ext)
	if err != nil {
		return "", err
	}

	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(f.Name())

		return "", err
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())

		return "", err
	}

	return f.Name(), nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}

	return n, nil
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	const op = "HandleListChats"

	limit, err := queryInt(r, "limit", defaultChatsLimit)
	if err != nil {
		s.writeError(w, "", apperr.InvalidReqError(op, "limit", err))

		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, "", apperr.InvalidReqError(op, "offset", err))

		return
	}

	if limit == 0 || limit > maxChatsLimit {
		limit = maxChatsLimit
	}

	chats, err := s.chat.ListChats(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, "", err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chat_id")

	messages, err := s.chat.ListMessages(r.Context(), chatID)
	if err != nil {
		s.writeError(w, chatID, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "messages": messages})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chat_id")

	if err := s.chat.DeleteChat(r.Context(), chatID); err != nil {
		s.writeError(w, chatID, err)

		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Status: statusSuccess, ChatID: chatID})
}
