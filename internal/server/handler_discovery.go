package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "uthread API",
		Version:     "v1",
		Description: "User-level thread scheduling runs: FCFS and round-robin dispatch traces",
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET", "POST"}, "List saved runs. POST a workload YAML to execute it; ?preemptive= and ?quantum= override its scheduler"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run with dispatch order and counters"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Dispatch trace of a run"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
