package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"carerules/pkg/domain"
)

type dispatchResponse struct {
	Trigger     string         `json:"trigger"`
	Transformed bool           `json:"transformed"`
	Mutated     bool           `json:"mutated"`
	Object      *domain.Object `json:"object"`
}

// dispatch runs a rule chain without saving. References are hydrated unless
// the request sets hydrate=false.
func (s *server) dispatch(w http.ResponseWriter, r *http.Request) {
	obj, ok := decodeObject(w, r)
	if !ok {
		return
	}
	trigger := chi.URLParam(r, "trigger")
	if r.URL.Query().Get("hydrate") != "false" {
		var err error
		if obj, err = s.svc.Hydrate(r.Context(), obj, s.svc.HydrateDepth()); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	out, err := s.svc.Apply(r.Context(), trigger, obj)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispatchResponse{
		Trigger:     trigger,
		Transformed: out.Transformed,
		Mutated:     out.Mutated,
		Object:      out.Object,
	})
}

type validateResponse struct {
	Issues   domain.Issues `json:"issues"`
	Blocking bool          `json:"blocking"`
}

func (s *server) validate(w http.ResponseWriter, r *http.Request) {
	obj, ok := decodeObject(w, r)
	if !ok {
		return
	}
	hydrated, err := s.svc.Hydrate(r.Context(), obj, s.svc.HydrateDepth())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	issues, err := s.svc.Validate(r.Context(), hydrated)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	blocking := issues.AtOrAbove(s.svc.BlockingPriority())
	writeJSON(w, http.StatusOK, validateResponse{Issues: issues, Blocking: len(blocking) > 0})
}

type commitResponse struct {
	Object *domain.Object `json:"object"`
	Issues domain.Issues  `json:"issues"`
}

func (s *server) insert(w http.ResponseWriter, r *http.Request) {
	obj, ok := decodeObject(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Insert(r.Context(), obj)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.logger.Info().Str("id", res.Object.ID).Str("type", res.Object.Type).Str("subject", Subject(r.Context())).Msg("object inserted")
	writeJSON(w, http.StatusCreated, commitResponse{Object: res.Object, Issues: res.Issues})
}

func (s *server) update(w http.ResponseWriter, r *http.Request) {
	obj, ok := decodeObject(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	switch obj.ID {
	case "":
		obj.ID = id
	case id:
	default:
		writeError(w, http.StatusBadRequest, "id_mismatch", "body id "+obj.ID+" does not match path id "+id)
		return
	}
	res, err := s.svc.Update(r.Context(), obj)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.logger.Info().Str("id", res.Object.ID).Str("type", res.Object.Type).Str("subject", Subject(r.Context())).Msg("object updated")
	writeJSON(w, http.StatusOK, commitResponse{Object: res.Object, Issues: res.Issues})
}

func (s *server) retrieve(w http.ResponseWriter, r *http.Request) {
	obj, err := s.svc.Retrieve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

type pluginInfo struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Rules      int    `json:"rules"`
	Validators int    `json:"validators"`
}

type chainInfo struct {
	Type       string              `json:"type"`
	Triggers   map[string][]string `json:"triggers,omitempty"`
	Validators []string            `json:"validators,omitempty"`
}

type rulesResponse struct {
	Plugins []pluginInfo `json:"plugins"`
	Chains  []chainInfo  `json:"chains"`
}

func (s *server) rules(w http.ResponseWriter, _ *http.Request) {
	engine := s.svc.Engine()
	resp := rulesResponse{Plugins: []pluginInfo{}, Chains: []chainInfo{}}
	for _, p := range engine.RegisteredPlugins() {
		resp.Plugins = append(resp.Plugins, pluginInfo(p))
	}
	for _, typ := range engine.EntityTypes() {
		chain := chainInfo{Type: typ}
		for _, trigger := range engine.Triggers(typ) {
			if chain.Triggers == nil {
				chain.Triggers = make(map[string][]string)
			}
			for _, rule := range engine.Rules(typ, trigger) {
				chain.Triggers[trigger] = append(chain.Triggers[trigger], rule.Name())
			}
		}
		for _, v := range engine.Validators(typ) {
			chain.Validators = append(chain.Validators, v.Name())
		}
		resp.Chains = append(resp.Chains, chain)
	}
	writeJSON(w, http.StatusOK, resp)
}
