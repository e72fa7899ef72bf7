package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mariozechner/coding-agent/chat/pkg/models"
	"github.com/mariozechner/coding-agent/chat/pkg/session"
	"github.com/mariozechner/coding-agent/chat/pkg/store"
)

type sessionView struct {
	ID             string `json:"id"`
	Model          string `json:"model"`
	ContextPending bool   `json:"context_pending"`
	Sink           string `json:"sink,omitempty"`
	Turns          int    `json:"turns"`
}

type turnResponse struct {
	Result string         `json:"result"`
	Text   string         `json:"text,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Sink   *sinkWriteView `json:"sink,omitempty"`
}

type sinkWriteView struct {
	Path    string `json:"path"`
	Written bool   `json:"written"`
	Missing bool   `json:"missing,omitempty"`
	Error   string `json:"error,omitempty"`
}

type sinkResponse struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

func (s *Server) view() sessionView {
	_, pending := s.sess.PendingContext()
	sink, _ := s.sess.OutputSink()
	return sessionView{
		ID:             s.sess.ID(),
		Model:          s.sess.ActiveModel(),
		ContextPending: pending,
		Sink:           sink,
		Turns:          len(s.sess.History()),
	}
}

// --- Session ---

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.view())
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	history := s.sess.History()
	if history == nil {
		history = []store.Turn{}
	}
	s.jsonResponse(w, http.StatusOK, history)
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	names, err := s.sess.ListModels(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.jsonResponse(w, http.StatusOK, names)
}

func (s *Server) handleChangeModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	s.apply(w, r, session.ChangeModel{Name: req.Name})
}

// --- Turns ---

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	s.apply(w, r, session.SubmitTurn{Text: req.Text})
}

func (s *Server) handleLoadContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	s.apply(w, r, session.LoadContext{Path: req.Path})
}

func (s *Server) handleToggleSink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	// An empty body is fine when turning the sink off.
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, err)
			return
		}
	}
	s.apply(w, r, session.ToggleSink{Path: req.Path})
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request, cmd session.Command) {
	out, err := s.sess.Apply(r.Context(), cmd)
	if err != nil {
		var cfgErr *session.ConfigError
		var ctxErr *session.ContextLoadError
		switch {
		case errors.As(err, &cfgErr), errors.As(err, &ctxErr):
			s.errorResponse(w, http.StatusUnprocessableEntity, err)
		default:
			s.errorResponse(w, http.StatusInternalServerError, err)
		}
		return
	}

	switch {
	case out.Turn != nil:
		if !out.Turn.Submitted {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.jsonResponse(w, http.StatusOK, newTurnResponse(*out.Turn))
	case out.Sink != nil:
		s.jsonResponse(w, http.StatusOK, sinkResponse{Enabled: out.Sink.Enabled, Path: out.Sink.Path})
	default:
		s.jsonResponse(w, http.StatusOK, s.view())
	}
}

func newTurnResponse(out session.TurnOutcome) turnResponse {
	resp := turnResponse{Result: out.Result.Kind.String()}
	switch out.Result.Kind {
	case models.ResultSuccess:
		resp.Text = out.Result.Text
	default:
		resp.Reason = out.Result.Reason
	}
	if out.Sink != nil {
		v := &sinkWriteView{Path: out.Sink.Path, Written: out.Sink.Written, Missing: out.Sink.Missing}
		if out.Sink.Err != nil {
			v.Error = out.Sink.Err.Error()
		}
		resp.Sink = v
	}
	return resp
}
