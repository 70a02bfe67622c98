package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

// SetupReply is the JSON answer to a remote setup request.
type SetupReply struct {
	Report *SetupReport `json:"report,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// HandleSetupMessage serves a setup request received over the message bus.
// The body is the same ROIRequest JSON the HTTP API accepts.
func (w *Worker) HandleSetupMessage(data []byte) []byte {
	reply := w.handleSetup(data)
	out, err := json.Marshal(reply)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return out
}

func (w *Worker) handleSetup(data []byte) SetupReply {
	var req models.ROIRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return SetupReply{Error: fmt.Sprintf("invalid request: %v", err)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SetupTimeout)
	defer cancel()

	report, err := w.RequestSetup(ctx, req.ROIs)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Remote setup request failed")
		return SetupReply{Error: err.Error()}
	}
	return SetupReply{Report: &report}
}
