package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ocx/backend/internal/debugbundle"
)

// initiateRequest is the JSON body for POST /v1/debug-bundle/{job_id}.
// Every field is optional, mirroring debugbundle.Parameters.
type initiateRequest struct {
	Authn *struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		Mechanism string `json:"mechanism"`
	} `json:"authn"`
	ControllerLogsSizeLimitBytes *uint64  `json:"controller_logs_size_limit_bytes"`
	CPUProfilerWaitSeconds       *uint64  `json:"cpu_profiler_wait_seconds"`
	LogsSince                    string   `json:"logs_since"`
	LogsSizeLimitBytes           *uint64  `json:"logs_size_limit_bytes"`
	LogsUntil                    string   `json:"logs_until"`
	MetricsIntervalSeconds       *uint64  `json:"metrics_interval_seconds"`
	Partition                    []string `json:"partition"`
	TLSEnabled                   *bool    `json:"tls_enabled"`
	TLSInsecureSkipVerify        *bool    `json:"tls_insecure_skip_verify"`
	K8sNamespace                 string   `json:"k8s_namespace"`
}

func (req initiateRequest) toParameters() debugbundle.Parameters {
	p := debugbundle.Parameters{
		ControllerLogsSizeLimitBytes: req.ControllerLogsSizeLimitBytes,
		CPUProfilerWaitSeconds:       req.CPUProfilerWaitSeconds,
		LogsSince:                    req.LogsSince,
		LogsSizeLimitBytes:           req.LogsSizeLimitBytes,
		LogsUntil:                    req.LogsUntil,
		MetricsIntervalSeconds:       req.MetricsIntervalSeconds,
		Partition:                    req.Partition,
		TLSEnabled:                   req.TLSEnabled,
		TLSInsecureSkipVerify:        req.TLSInsecureSkipVerify,
		K8sNamespace:                 req.K8sNamespace,
	}
	if req.Authn != nil {
		p.Authn = &debugbundle.SCRAMAuth{
			Username:  req.Authn.Username,
			Password:  req.Authn.Password,
			Mechanism: debugbundle.SCRAMMechanism(req.Authn.Mechanism),
		}
	}
	return p
}

func jobIDFromPath(r *http.Request) (debugbundle.JobID, error) {
	return uuid.Parse(mux.Vars(r)["job_id"])
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDFromPath(r)
	if err != nil {
		writeError(w, debugbundle.Tagged(debugbundle.ErrInvalidParameters))
		return
	}

	var req initiateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, debugbundle.Tagged(debugbundle.ErrInvalidParameters))
			return
		}
	}

	if err := s.svc.Initiate(r.Context(), jobID, req.toParameters()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDFromPath(r)
	if err != nil {
		writeError(w, debugbundle.Tagged(debugbundle.ErrJobIDNotRecognized))
		return
	}
	if err := s.svc.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDFromPath(r)
	if err != nil {
		writeError(w, debugbundle.Tagged(debugbundle.ErrJobIDNotRecognized))
		return
	}

	path, err := s.svc.Path(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDFromPath(r)
	if err != nil {
		writeError(w, debugbundle.Tagged(debugbundle.ErrJobIDNotRecognized))
		return
	}
	if err := s.svc.Delete(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
