package mqtt

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/ttsp.go/pkg/adapter"
	"github.com/robotalks/ttsp.go/pkg/transport"
)

// WriteRequest is the payload on the write topic.
type WriteRequest struct {
	Addr uint16 `json:"addr"`
	// Data is hex encoded.
	Data string `json:"data"`
}

// WriteResult is published on the result topic.
type WriteResult struct {
	Addr   uint16 `json:"addr"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// WriteHandler applies register writes received from MQTT:
// requests on <device>/write, results on <device>/write/result.
type WriteHandler struct {
	Device string
	Ops    adapter.Ops
	Queue  *Queue
	Pubber Pubber
}

// NewWriteHandler creates a WriteHandler using the queue.
func NewWriteHandler(device string, ops adapter.Ops, q *Queue) *WriteHandler {
	return &WriteHandler{Device: device, Ops: ops, Queue: q, Pubber: q}
}

// Name implements framework.Named.
func (h *WriteHandler) Name() string {
	return "mqtt-write:" + h.Device
}

// RequestTopic is where write requests are received.
func (h *WriteHandler) RequestTopic() string {
	return h.Device + "/write"
}

// ResultTopic is where write results are published.
func (h *WriteHandler) ResultTopic() string {
	return h.Device + "/write/result"
}

// Run implements framework.Runnable.
func (h *WriteHandler) Run(ctx context.Context) error {
	sub := h.Queue.Sub(h.RequestTopic(), h.HandleMessage)
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

// HandleMessage processes a single write request.
func (h *WriteHandler) HandleMessage(topic string, payload []byte) {
	result := h.apply(payload)
	out, err := json.Marshal(result)
	if err != nil {
		glog.Errorf("%s: encode result error: %v", h.Device, err)
		return
	}
	h.Pubber.Pub(h.ResultTopic(), out)
}

func (h *WriteHandler) apply(payload []byte) *WriteResult {
	var req WriteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return &WriteResult{
			Status: transport.StatusInvalidArgument.String(),
			Error:  fmt.Sprintf("bad request: %v", err),
		}
	}
	result := &WriteResult{Addr: req.Addr}
	data, err := hex.DecodeString(req.Data)
	if err != nil {
		result.Status = transport.StatusInvalidArgument.String()
		result.Error = fmt.Sprintf("bad data: %v", err)
		return result
	}
	err = h.Ops.Write(req.Addr, data)
	result.Status = transport.StatusOf(err).String()
	if err != nil {
		result.Error = err.Error()
		glog.V(2).Infof("%s: write 0x%03x: %v", h.Device, req.Addr, err)
	}
	return result
}
