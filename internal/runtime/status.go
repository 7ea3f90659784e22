package runtime

import (
	"net/http"

	"github.com/drblury/hubflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/hubflow/internal/runtime/logging"
	"github.com/drblury/hubflow/internal/runtime/metrics"
)

// StatusReport is the body served at /api/status.
type StatusReport struct {
	InstanceID string           `json:"instance_id"`
	Transport  string           `json:"transport"`
	Endpoints  []EndpointStatus `json:"endpoints"`
	Pipeline   metrics.Snapshot `json:"pipeline"`
	Resources  ResourceUsage    `json:"resources"`
}

type EndpointStatus struct {
	Address       string `json:"address"`
	Stream        string `json:"stream"`
	ConsumerGroup string `json:"consumer_group"`
	Mode          string `json:"mode"`
	// Listener is empty for send-only endpoints.
	Listener string `json:"listener,omitempty"`
}

// Status collects the current endpoint and pipeline state.
func (s *Service) Status() StatusReport {
	endpoints := s.transport.Endpoints()
	report := StatusReport{
		InstanceID: s.instanceID,
		Transport:  s.Conf.GetTransport(),
		Endpoints:  make([]EndpointStatus, 0, len(endpoints)),
		Pipeline:   s.metrics.Snapshot(),
		Resources:  s.resourceTracker.Snapshot(),
	}
	for _, ep := range endpoints {
		addr := ep.Address()
		st := EndpointStatus{
			Address:       addr.String(),
			Stream:        addr.Stream,
			ConsumerGroup: addr.ConsumerGroup,
			Mode:          addr.Mode,
		}
		if l := ep.Listener(); l != nil {
			st.Listener = l.State().String()
		}
		report.Endpoints = append(report.Endpoints, st)
	}
	return report
}

// StartStatusServer mounts /api/status next to /metrics when metrics are enabled.
func (s *Service) StartStatusServer() {
	if !s.Conf.MetricsEnabled {
		return
	}
	s.RegisterHTTPHandler(s.Conf.MetricsPort, "/api/status", http.HandlerFunc(s.handleGetStatus))
}

func (s *Service) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, s.Status()); err != nil {
		s.Logger.Error("Failed to encode status", err, loggingpkg.LogFields{"path": r.URL.Path})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
