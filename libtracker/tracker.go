package libtracker

import (
	"context"
	"log"
	"time"
)

// ActivityTracker observes the lifecycle of one operation. Start returns three
// callbacks: reportErr records a failure, reportChange records the affected
// entity and its new data, and end closes the span. Callers are expected to
// defer end and invoke exactly one of the report functions.
type ActivityTracker interface {
	Start(ctx context.Context, operation string, subject string, kvArgs ...any) (func(error), func(string, any), func())
}

// NoopTracker discards all activity.
type NoopTracker struct{}

func (NoopTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (func(error), func(string, any), func()) {
	return func(error) {}, func(string, any) {}, func() {}
}

var _ ActivityTracker = NoopTracker{}

// LogActivityTracker writes spans to the standard logger. Used by the CLI and
// as a default when no KV sink is configured.
type LogActivityTracker struct{}

func (LogActivityTracker) Start(ctx context.Context, operation string, subject string, kvArgs ...any) (func(error), func(string, any), func()) {
	start := time.Now().UTC()
	meta := extractMetadata(kvArgs...)
	reqID, _ := ctx.Value(ContextKeyRequestID).(string)

	reportErr := func(err error) {
		if err != nil {
			log.Printf("activity: op=%s subject=%s request=%s meta=%v error=%v", operation, subject, reqID, meta, err)
		}
	}
	reportChange := func(id string, data any) {
		log.Printf("activity: op=%s subject=%s request=%s entity=%s", operation, subject, reqID, id)
	}
	end := func() {
		log.Printf("activity: op=%s subject=%s request=%s duration=%s", operation, subject, reqID, time.Since(start))
	}
	return reportErr, reportChange, end
}

var _ ActivityTracker = LogActivityTracker{}

func extractMetadata(args ...any) map[string]string {
	meta := make(map[string]string)
	for i := 0; i+1 < len(args); i += 2 {
		key, okKey := args[i].(string)
		val, okVal := args[i+1].(string)
		if okKey && okVal {
			meta[key] = val
		}
	}
	return meta
}
