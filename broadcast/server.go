package broadcast

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Server exposes the websocket viewer endpoint and recorded artifacts.
type Server struct {
	hub      *Hub
	rec      RecordControl
	recDir   string
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, rec RecordControl, recordingsDir string) *Server {
	return &Server{
		hub:    hub,
		rec:    rec,
		recDir: recordingsDir,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleViewer)
	r.HandleFunc("/recordings", s.listRecordings).Methods(http.MethodGet)
	r.HandleFunc("/recordings/{session}/{camera}/{file}", s.serveArtifact).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleViewer upgrades the connection, registers the viewer for broadcast
// and runs its control-message read loop. start_record and stop_record
// mutate the recorder; anything else is ignored without closing the
// connection. The viewer is deregistered when the read loop ends.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	viewer := NewViewer(conn)
	s.hub.Add(viewer)
	log.Info().Str("viewer", viewer.ID.String()).Str("remote", conn.RemoteAddr().String()).Msg("viewer connected")
	defer func() {
		s.hub.Remove(viewer.ID)
		log.Info().Str("viewer", viewer.ID.String()).Msg("viewer disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ctrl Control
		if err := json.Unmarshal(data, &ctrl); err != nil {
			// malformed control messages are ignored
			continue
		}
		switch ctrl.Action {
		case actionStartRecord:
			dir, err := s.rec.Activate()
			if err != nil {
				log.Error().Err(err).Msg("activating recorder")
				continue
			}
			if err := viewer.sendJSON(map[string]string{"status": "recording_started", "directory": dir}); err != nil {
				log.Warn().Err(err).Str("viewer", viewer.ID.String()).Msg("sending recording reply")
			}
		case actionStopRecord:
			s.rec.Deactivate()
			if err := viewer.sendJSON(map[string]string{"status": "recording_stopped"}); err != nil {
				log.Warn().Err(err).Str("viewer", viewer.ID.String()).Msg("sending recording reply")
			}
		}
	}
}

type recordingFile struct {
	Name string `json:"name"`
	Size string `json:"size"`
}

type recordingCamera struct {
	Name  string          `json:"name"`
	Files []recordingFile `json:"files"`
}

type recordingSession struct {
	Name    string            `json:"name"`
	Cameras []recordingCamera `json:"cameras"`
}

func (s *Server) listRecordings(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")

	sessions := []recordingSession{}
	entries, err := os.ReadDir(s.recDir)
	if err != nil && !os.IsNotExist(err) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "session_") {
			continue
		}
		sessions = append(sessions, s.readSession(entry.Name()))
	}
	json.NewEncoder(w).Encode(sessions)
}

func (s *Server) readSession(name string) recordingSession {
	sess := recordingSession{Name: name, Cameras: []recordingCamera{}}
	camDirs, err := os.ReadDir(filepath.Join(s.recDir, name))
	if err != nil {
		return sess
	}
	for _, camDir := range camDirs {
		if !camDir.IsDir() {
			continue
		}
		cam := recordingCamera{Name: camDir.Name(), Files: []recordingFile{}}
		files, err := os.ReadDir(filepath.Join(s.recDir, name, camDir.Name()))
		if err != nil {
			continue
		}
		for _, file := range files {
			info, err := file.Info()
			if err != nil {
				continue
			}
			cam.Files = append(cam.Files, recordingFile{
				Name: file.Name(),
				Size: humanize.Bytes(uint64(info.Size())),
			})
		}
		sess.Cameras = append(sess.Cameras, cam)
	}
	return sess
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	vars := mux.Vars(r)
	session, camera, file := vars["session"], vars["camera"], vars["file"]
	for _, segment := range []string{session, camera, file} {
		if !validSegment(segment) {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
	}
	path := filepath.Join(s.recDir, session, camera, file)
	switch filepath.Ext(file) {
	case ".mp4":
		w.Header().Set("Content-Type", "video/mp4")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", "inline")
	http.ServeFile(w, r, path)
}

// validSegment rejects path traversal in a single artifact path segment.
func validSegment(segment string) bool {
	if segment == "" || segment == "." || segment == ".." {
		return false
	}
	return !strings.ContainsAny(segment, "/\\")
}

func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
