// Package httpapi — JSON API состояния RTC.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shiwa/jetson-ds3231/internal/logger"
	"github.com/shiwa/jetson-ds3231/pkg/ds3231"
)

// Server — HTTP-сервер API. List перечисляет привязанные устройства.
type Server struct {
	List func() []*ds3231.Device
	// Now — источник системного времени для systohc (nil — time.Now).
	Now func() time.Time
}

// Handler возвращает маршруты API:
//
//	GET  /api/rtc
//	GET  /api/rtc/{name}
//	PUT  /api/rtc/{name}/time     {"time": "2024-01-02T03:04:05Z"}
//	POST /api/rtc/{name}/systohc
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rtc", s.handleList)
	mux.HandleFunc("/api/rtc/", s.handleDevice)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Run слушает addr до отмены ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("http api listening on %s", listener.Addr())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ds3231d\n"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	snaps := []ds3231.Snapshot{}
	for _, d := range s.List() {
		snaps = append(snaps, d.Snapshot())
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/rtc/"), "/")
	name, action, _ := strings.Cut(rest, "/")
	d, ok := ds3231.Find(s.List(), name)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no such device: "+name))
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, d.Snapshot())
	case action == "time" && r.Method == http.MethodPut:
		var req struct {
			Time time.Time `json:"time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := d.Clock().SetTime(req.Time); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		logger.Info("%s: time set to %s via http", d.Name(), req.Time.UTC().Format(time.RFC3339))
		writeJSON(w, http.StatusOK, d.Snapshot())
	case action == "systohc" && r.Method == http.MethodPost:
		if err := d.SetTimeFromSystem(s.now()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, d.Snapshot())
	case action == "" || action == "time" || action == "systohc":
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{err.Error()})
}
