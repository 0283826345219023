package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/admitlab/admitpipe/internal/pipeline"
	"github.com/admitlab/admitpipe/internal/runguard"
)

type pullDataResponse struct {
	Outcome string                 `json:"outcome"`
	Summary pipeline.IngestSummary `json:"summary"`
}

type updateAnalysisResponse struct {
	Outcome string                   `json:"outcome"`
	Summary pipeline.AnalysisSummary `json:"summary"`
}

// pullData triggers a synchronous ingestion run. A run already in flight
// yields 409 and leaves the store untouched.
func (s *Server) pullData(w http.ResponseWriter, r *http.Request) {
	summary, outcome, err := s.pipeline.RunIngestion(r.Context())
	switch outcome {
	case pipeline.OutcomeConflict:
		s.writeRunError(w, http.StatusConflict, outcome, err)
	case pipeline.OutcomeFailed:
		s.logger.Error("ingestion run failed", zap.Error(err))
		s.writeRunError(w, http.StatusInternalServerError, outcome, err)
	default:
		s.writeJSON(w, http.StatusOK, pullDataResponse{
			Outcome: string(outcome),
			Summary: summary,
		})
	}
}

// updateAnalysis triggers a synchronous analysis run over the stored
// applicant rows and rewrites the answer cards.
func (s *Server) updateAnalysis(w http.ResponseWriter, r *http.Request) {
	summary, outcome, err := s.pipeline.RunAnalysis(r.Context())
	switch outcome {
	case pipeline.OutcomeConflict:
		s.writeRunError(w, http.StatusConflict, outcome, err)
	case pipeline.OutcomeFailed:
		s.logger.Error("analysis run failed", zap.Error(err))
		s.writeRunError(w, http.StatusInternalServerError, outcome, err)
	default:
		s.writeJSON(w, http.StatusOK, updateAnalysisResponse{
			Outcome: string(outcome),
			Summary: summary,
		})
	}
}

// analysisCards serves the current card set as one JSON array, straight
// from the card files on disk.
func (s *Server) analysisCards(w http.ResponseWriter, _ *http.Request) {
	raw, err := s.cards.Raw()
	if err != nil {
		s.logger.Error("read cards failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read analysis cards")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("write cards failed", zap.Error(err))
	}
}

func (s *Server) writeRunError(w http.ResponseWriter, status int, outcome pipeline.Outcome, err error) {
	s.writeJSON(w, status, map[string]string{
		"outcome": string(outcome),
		"error":   runMessage(err),
	})
}

func runMessage(err error) string {
	switch {
	case err == nil:
		return "run failed"
	case errors.Is(err, runguard.ErrBusy):
		return "a run is already in progress"
	default:
		return err.Error()
	}
}
