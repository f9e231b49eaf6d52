package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicechat/internal/chat"
	"voicechat/internal/responder"
	"voicechat/internal/storage"
)

// awaitingTranscription 纯录音消息后追加的系统记录
// awaitingTranscription is the system record appended after an audio-only message
const awaitingTranscription = "audio received, awaiting transcription"

type threadJSON struct {
	ChatID    string `json:"chat_id"`
	ThreadID  string `json:"thread_id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toThreadJSON(c storage.Chat) threadJSON {
	return threadJSON{
		ChatID:    c.ID,
		ThreadID:  c.ThreadID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context())
	if err != nil {
		s.log.WithError(err).Error("list chats")
		writeError(w, "Error retrieving chats", http.StatusInternalServerError)
		return
	}
	out := make([]threadJSON, 0, len(chats))
	for _, c := range chats {
		out = append(out, toThreadJSON(c))
	}
	writeData(w, "Chats retrieved successfully", out)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	c, err := s.store.CreateChat(r.Context(), req.Title)
	if err != nil {
		s.log.WithError(err).Error("create chat")
		writeError(w, "Could not create thread", http.StatusInternalServerError)
		return
	}
	s.log.WithField("thread", c.ThreadID).Info("thread created")
	writeData(w, "Thread created", toThreadJSON(c))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	if !s.threadExists(w, r, threadID) {
		return
	}
	msgs, err := s.store.Messages(r.Context(), threadID)
	if err != nil {
		s.log.WithError(err).WithField("thread", threadID).Error("load messages")
		writeError(w, "Could not load messages", http.StatusInternalServerError)
		return
	}
	out := make([]chat.RemoteMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chat.RemoteMessage{
			Type:             m.Role,
			Content:          chat.TextContent(m.Content),
			AdditionalKwargs: m.Kwargs,
		})
	}
	writeData(w, "Messages retrieved successfully", out)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	var req struct {
		Message   string `json:"message"`
		AudioPath string `json:"audio_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.Message)
	audio := strings.TrimSpace(req.AudioPath)
	if text == "" && audio == "" {
		writeError(w, "Missing message or audio_path", http.StatusBadRequest)
		return
	}
	if !s.threadExists(w, r, threadID) {
		return
	}

	defer s.lockThread(threadID)()
	ctx := r.Context()
	log := s.log.WithFields(logrus.Fields{"thread": threadID, "audio": audio != ""})

	human := storage.Message{Role: chat.RoleHuman, Content: text, CreatedAt: s.now()}
	if audio != "" {
		human.Kwargs = map[string]any{chat.AudioURLKey: audio}
	}

	if text == "" {
		pending := storage.Message{Role: chat.RoleSystem, Content: awaitingTranscription, CreatedAt: s.now()}
		if err := s.store.AppendMessages(ctx, threadID, human, pending); err != nil {
			log.WithError(err).Error("append audio message")
			writeError(w, "Could not save message", http.StatusInternalServerError)
			return
		}
		log.Info("audio message stored, awaiting transcription")
		writeJSON(w, http.StatusOK, envelope{Status: "interrupted", Message: awaitingTranscription})
		return
	}

	if err := s.store.AppendMessages(ctx, threadID, human); err != nil {
		log.WithError(err).Error("append message")
		writeError(w, "Could not save message", http.StatusInternalServerError)
		return
	}
	history, err := s.history(r, threadID)
	if err != nil {
		log.WithError(err).Error("load history")
		writeError(w, "Could not load history", http.StatusInternalServerError)
		return
	}
	reply, err := s.responder.Reply(ctx, history)
	if err != nil {
		log.WithError(err).Warn("responder failed")
		writeError(w, "Responder failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	if err := s.store.AppendMessages(ctx, threadID, storage.Message{Role: chat.RoleAI, Content: reply, CreatedAt: s.now()}); err != nil {
		log.WithError(err).Error("append reply")
		writeError(w, "Could not save reply", http.StatusInternalServerError)
		return
	}
	log.WithField("responder", s.responder.Name()).Info("reply stored")
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "Message processed"})
}

func (s *Server) history(r *http.Request, threadID string) ([]responder.Turn, error) {
	msgs, err := s.store.Messages(r.Context(), threadID)
	if err != nil {
		return nil, err
	}
	turns := make([]responder.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == chat.RoleSystem {
			continue
		}
		url, _ := m.Kwargs[chat.AudioURLKey].(string)
		turns = append(turns, responder.Turn{Role: m.Role, Content: m.Content, AudioURL: url})
	}
	return turns, nil
}

func (s *Server) threadExists(w http.ResponseWriter, r *http.Request, threadID string) bool {
	_, err := s.store.ChatByThread(r.Context(), threadID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, "Thread not found", http.StatusNotFound)
	default:
		s.log.WithError(err).WithField("thread", threadID).Error("load thread")
		writeError(w, "Could not load thread", http.StatusInternalServerError)
	}
	return false
}

type uploadJSON struct {
	Filename       string `json:"filename"`
	UniqueFilename string `json:"unique_filename"`
	URL            string `json:"url"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := uniqueFilename(header.Filename, s.now())
	path := filepath.Join(s.uploadDir, name)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.WithError(err).Error("create upload file")
		writeError(w, "Could not store file", http.StatusInternalServerError)
		return
	}
	size, copyErr := io.Copy(out, file)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		s.log.WithError(errors.Join(copyErr, closeErr)).Error("write upload file")
		writeError(w, "Could not store file", http.StatusInternalServerError)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = typeByExtension(filepath.Ext(name), mimeType)
	}
	rec := storage.File{Name: name, Original: header.Filename, MimeType: mimeType, Size: size, Path: path, CreatedAt: s.now()}
	if err := s.store.SaveFile(r.Context(), rec); err != nil {
		_ = os.Remove(path)
		s.log.WithError(err).Error("save file record")
		writeError(w, "Could not store file", http.StatusInternalServerError)
		return
	}
	s.log.WithFields(logrus.Fields{"file": name, "bytes": size}).Info("file uploaded")
	writeData(w, "File uploaded successfully", uploadJSON{
		Filename:       header.Filename,
		UniqueFilename: name,
		URL:            "/files/download/" + name,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rec, err := s.store.File(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, "File not found", http.StatusNotFound)
			return
		}
		s.log.WithError(err).Error("load file record")
		writeError(w, "Could not load file", http.StatusInternalServerError)
		return
	}
	f, err := os.Open(rec.Path)
	if err != nil {
		s.log.WithError(err).WithField("file", name).Error("open stored file")
		writeError(w, "File not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	if rec.MimeType != "" {
		w.Header().Set("Content-Type", rec.MimeType)
	}
	http.ServeContent(w, r, rec.Original, rec.CreatedAt, f)
}

// audioTypes 系统 mime 表不一定包含录音格式 / the system mime table may lack recording formats
var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
}

func typeByExtension(ext, fallback string) string {
	if t, ok := audioTypes[strings.ToLower(ext)]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return fallback
}

// uniqueFilename <unix>_<uuid hex>.<原扩展名小写>
func uniqueFilename(original string, now time.Time) string {
	id := fmt.Sprintf("%d_%s", now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", ""))
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filepath.Base(original)), "."))
	if ext == "" {
		return id
	}
	return id + "." + ext
}
