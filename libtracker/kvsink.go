package libtracker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	libkv "github.com/chainwork/chainwork/libkvstore"
	"github.com/google/uuid"
)

const (
	activityLogKey        = "activity:log"
	activityRequestsKey   = "activity:requests"
	activityOperationsKey = "activity:operations"
	// activityLogCap bounds the rolling log; older events fall off.
	activityLogCap = 1000
)

// KVActivitySink persists tracked events into the key-value store so
// recent activity survives process restarts and is queryable per request.
type KVActivitySink struct {
	kvManager libkv.KVManager
}

func NewKVActivityTracker(kvManager libkv.KVManager) *KVActivitySink {
	return &KVActivitySink{kvManager: kvManager}
}

// TrackedEvent is the stored form of one operation-lifecycle capture.
type TrackedEvent struct {
	ID         string            `json:"id"`
	Operation  string            `json:"operation"`
	Subject    string            `json:"subject"`
	Start      time.Time         `json:"start"`
	End        *time.Time        `json:"end,omitempty"`
	Error      *string           `json:"error,omitempty"`
	EntityID   *string           `json:"entityID,omitempty"`
	EntityData any               `json:"entityData,omitempty"`
	Duration   float64           `json:"duration"` // milliseconds
	Metadata   map[string]string `json:"metadata,omitempty"`
	RequestID  string            `json:"requestID,omitempty"`
}

type TrackedRequest struct {
	ID string `json:"id"`
}

type Operation struct {
	Operation string `json:"operation"`
	Subject   string `json:"subject"`
}

func (t *KVActivitySink) Start(
	ctx context.Context,
	operation string,
	subject string,
	kvArgs ...any,
) (func(error), func(string, any), func()) {
	startTime := time.Now().UTC()

	event := &TrackedEvent{
		ID:        uuid.New().String(),
		Operation: operation,
		Subject:   subject,
		Start:     startTime,
		Metadata:  extractMetadata(kvArgs...),
	}
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		event.RequestID = reqID
	}

	reportErr := func(err error) {
		if err != nil {
			errStr := err.Error()
			event.Error = &errStr
		}
	}
	reportChange := func(id string, data any) {
		event.EntityID = &id
		event.EntityData = data
	}

	end := func() {
		now := time.Now().UTC()
		event.End = &now
		if duration := time.Since(startTime); duration > 0 {
			event.Duration = float64(duration) / float64(time.Millisecond)
		}

		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("SERVERBUG: Failed to marshal activity event: %v", err)
			return
		}

		kv, err := t.kvManager.Executor(ctx)
		if err != nil {
			log.Printf("SERVERBUG: Failed to get KV executor: %v", err)
			return
		}

		if err := kv.ListPush(ctx, activityLogKey, data); err != nil {
			log.Printf("SERVERBUG: Failed to push activity event: %v", err)
		}
		if err := kv.ListTrim(ctx, activityLogKey, 0, activityLogCap-1); err != nil {
			log.Printf("SERVERBUG: Failed to trim activity log: %v", err)
		}

		if event.RequestID == "" {
			return
		}
		if err := kv.ListPush(ctx, "activity:request:"+event.RequestID, data); err != nil {
			log.Printf("SERVERBUG: Failed to push requestID activity event: %v", err)
		}
		treq, err := json.Marshal(TrackedRequest{ID: event.RequestID})
		if err != nil {
			log.Printf("SERVERBUG: Failed to marshal tracked request: %v", err)
			return
		}
		if err := kv.SetAdd(ctx, activityRequestsKey, treq); err != nil {
			log.Printf("SERVERBUG: Failed to track requestID: %v", err)
		}
		if err := kv.SetAdd(ctx, "activity:"+event.Operation+","+event.Subject, treq); err != nil {
			log.Printf("SERVERBUG: Failed to track requestID by operation: %v", err)
		}
		opData, err := json.Marshal(Operation{Operation: event.Operation, Subject: event.Subject})
		if err != nil {
			log.Printf("SERVERBUG: Failed to marshal operation: %v", err)
			return
		}
		if err := kv.SetAdd(ctx, activityOperationsKey, opData); err != nil {
			log.Printf("SERVERBUG: Failed to track operation: %v", err)
		}
	}

	return reportErr, reportChange, end
}

// GetActivityLogs returns up to limit recent events, newest first.
func (t *KVActivitySink) GetActivityLogs(ctx context.Context, limit int) ([]TrackedEvent, error) {
	kv, err := t.kvManager.Executor(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}

	listLen, err := kv.ListLength(ctx, activityLogKey)
	if err != nil {
		return nil, err
	}

	stop := int64(limit - 1)
	if listLen < stop+1 {
		stop = listLen - 1
	}

	rawItems, err := kv.ListRange(ctx, activityLogKey, 0, stop)
	if err != nil {
		return nil, err
	}

	var results []TrackedEvent
	for _, raw := range rawItems {
		var evt TrackedEvent
		if err := json.Unmarshal(raw, &evt); err == nil {
			results = append(results, evt)
		}
	}
	return results, nil
}

// GetRecentRequestIDs lists request ids that have logged at least one event.
func (t *KVActivitySink) GetRecentRequestIDs(ctx context.Context, limit int) ([]TrackedRequest, error) {
	if limit <= 0 {
		limit = 100
	}

	kv, err := t.kvManager.Executor(ctx)
	if err != nil {
		return nil, err
	}

	rawItems, err := kv.SetMembers(ctx, activityRequestsKey)
	if err != nil {
		return nil, err
	}

	var requests []TrackedRequest
	seen := make(map[string]struct{}, len(rawItems))
	for _, raw := range rawItems {
		var req TrackedRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		if _, exists := seen[req.ID]; exists {
			continue
		}
		seen[req.ID] = struct{}{}
		requests = append(requests, req)
		if len(requests) >= limit {
			break
		}
	}
	return requests, nil
}

func (t *KVActivitySink) GetKnownOperations(ctx context.Context) ([]Operation, error) {
	kv, err := t.kvManager.Executor(ctx)
	if err != nil {
		return nil, err
	}

	rawItems, err := kv.SetMembers(ctx, activityOperationsKey)
	if err != nil {
		return nil, err
	}

	var results []Operation
	seen := make(map[string]struct{}, len(rawItems))
	for _, raw := range rawItems {
		var op Operation
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		key := op.Operation + ":" + op.Subject
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, op)
	}
	return results, nil
}

func (t *KVActivitySink) GetRequestIDsByOperation(ctx context.Context, operation Operation) ([]TrackedRequest, error) {
	kv, err := t.kvManager.Executor(ctx)
	if err != nil {
		return nil, err
	}

	rawItems, err := kv.SetMembers(ctx, "activity:"+operation.Operation+","+operation.Subject)
	if err != nil {
		return nil, err
	}

	var results []TrackedRequest
	for _, raw := range rawItems {
		var req TrackedRequest
		if err := json.Unmarshal(raw, &req); err == nil {
			results = append(results, req)
		}
	}
	return results, nil
}

func (t *KVActivitySink) GetActivityLogsByRequestID(ctx context.Context, requestID string) ([]TrackedEvent, error) {
	if requestID == "" {
		return nil, nil
	}

	kv, err := t.kvManager.Executor(ctx)
	if err != nil {
		return nil, err
	}

	rawItems, err := kv.ListRange(ctx, "activity:request:"+requestID, 0, -1)
	if err != nil {
		return nil, err
	}

	var results []TrackedEvent
	for _, raw := range rawItems {
		var evt TrackedEvent
		if err := json.Unmarshal(raw, &evt); err == nil {
			results = append(results, evt)
		}
	}
	return results, nil
}

var _ ActivityTracker = (*KVActivitySink)(nil)
