package signature

import (
	"context"
	"time"
)

// Dispatcher schedules the per-event tasks. Delivery is at least once, no earlier than delay.
type Dispatcher interface {
	ScheduleSend(ctx context.Context, eventID string, delay time.Duration) error
	ScheduleCheckStatus(ctx context.Context, eventID string, delay time.Duration) error
	ScheduleUpload(ctx context.Context, eventID string, delay time.Duration) error
}
