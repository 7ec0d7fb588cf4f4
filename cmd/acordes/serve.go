package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-acordes/algorithms/tonal"
	"github.com/RyanBlaney/sonido-acordes/detector"
	"github.com/RyanBlaney/sonido-acordes/logging"
	"github.com/RyanBlaney/sonido-acordes/transcode"
)

const maxUploadBytes = 64 << 20

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the detector over HTTP",
	Long: `Serves the detector over HTTP.

  POST /api/detect   raw audio body, optional ?beam=narrow|full and ?key=A+minor
  GET  /api/health`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), servePort)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "8080", "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

type audioDecoder interface {
	DecodeBytes(ctx context.Context, data []byte) (*transcode.AudioData, error)
}

type server struct {
	detector *detector.Detector
	decoder  audioDecoder
	logger   logging.Logger
}

type errorResponse struct {
	Error string `json:"detail"`
}

func newServer(d *detector.Detector, decoder audioDecoder) *server {
	return &server{
		detector: d,
		decoder:  decoder,
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
	}
}

func (s *server) routes() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/api/detect", s.handleDetect).Methods(http.MethodPost)
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

func serve(ctx context.Context, port string) error {
	d, err := detector.NewDetector(cfg)
	if err != nil {
		return err
	}
	s := newServer(d, newAudioDecoder())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", logging.Fields{"port": port})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleDetect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := &detector.Options{Beam: detector.BeamMode(r.URL.Query().Get("beam"))}
	if name := r.URL.Query().Get("key"); name != "" {
		key, err := tonal.ParseKey(name)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		opts.KeyHint = &key
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "audio body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "could not read request body"})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty audio body"})
		return
	}

	data, err := s.decoder.DecodeBytes(ctx, body)
	if err != nil {
		s.logger.Warn("Audio decode failed", logging.Fields{"error": err.Error(), "bytes": len(body)})
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "could not decode audio"})
		return
	}

	result, err := s.detector.Detect(ctx, toAudio(data), opts)
	if err != nil {
		switch {
		case errors.Is(err, detector.ErrInvalidAudio):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		case errors.Is(err, detector.ErrInvalidConfig):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// client went away
		default:
			s.logger.Error(err, "Detection failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "detection failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
