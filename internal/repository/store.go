package repository

import (
	"context"

	"github.com/glizzus/mustard/internal/schedule"
)

// DefaultTimerMaxTime is the countdown threshold, in seconds, given to
// timers created without one.
const DefaultTimerMaxTime = 3600

// Setup is a stream preset: category, title and tags applied together,
// plus the template used for the go-live announcement.
type Setup struct {
	ID       int64
	OwnerID  int64
	Category string
	Title    string
	Tags     string
	Tweet    string
}

// Timer is a countdown shown on stream overlays. The ID is embedded in
// third-party overlay configurations and never changes once assigned.
type Timer struct {
	ID      string
	OwnerID int64
	Title   string
	Delta   int
	MaxTime int
	Styling string
}

// TimerPatch carries the fields of a timer that were supplied by a caller.
// A nil field is left as it is on update and takes its default on insert.
type TimerPatch struct {
	Title   *string
	Delta   *int
	MaxTime *int
	Styling *string
}

// ScheduleConfig is an owner's weekly broadcast schedule.
type ScheduleConfig struct {
	Timezone    string
	Weekly      schedule.WeeklySchedule
	TweetOffset int
}

// Tx is a unit of work scoped to one owner. Every method reads or writes
// that owner's records only.
type Tx interface {
	DeleteSetups(ctx context.Context) (int64, error)
	InsertSetup(ctx context.Context, setup Setup) (int64, error)
	ListSetups(ctx context.Context) ([]Setup, error)

	ListTimerIDs(ctx context.Context) ([]string, error)
	ListTimers(ctx context.Context) ([]Timer, error)
	InsertTimer(ctx context.Context, id string, patch TimerPatch) error
	UpdateTimer(ctx context.Context, id string, patch TimerPatch) error
	DeleteTimer(ctx context.Context, id string) error

	GetSchedule(ctx context.Context) (ScheduleConfig, error)
	SetSchedule(ctx context.Context, timezone string, weekly schedule.WeeklySchedule) error
	SetTweetOffset(ctx context.Context, offset int) error

	GetChecklist(ctx context.Context) (string, error)
	SetChecklist(ctx context.Context, checklist string) error
}

// Store runs owner-scoped transactions.
type Store interface {
	// WithTx runs fn in a transaction for ownerID, creating the owner if it
	// does not exist. The transaction commits if fn returns nil and rolls
	// back otherwise; the error from fn is returned unchanged.
	WithTx(ctx context.Context, ownerID int64, fn func(tx Tx) error) error

	// Owners lists every known owner id in ascending order.
	Owners(ctx context.Context) ([]int64, error)
}

// LoadSchedule reads the schedule of one owner in its own transaction.
func LoadSchedule(ctx context.Context, store Store, ownerID int64) (ScheduleConfig, error) {
	var cfg ScheduleConfig
	err := store.WithTx(ctx, ownerID, func(tx Tx) error {
		var err error
		cfg, err = tx.GetSchedule(ctx)
		return err
	})
	return cfg, err
}

// LoadSetups reads the setups of one owner in its own transaction.
func LoadSetups(ctx context.Context, store Store, ownerID int64) ([]Setup, error) {
	var setups []Setup
	err := store.WithTx(ctx, ownerID, func(tx Tx) error {
		var err error
		setups, err = tx.ListSetups(ctx)
		return err
	})
	return setups, err
}

// Ptr returns a pointer to v. It keeps TimerPatch literals short.
func Ptr[T any](v T) *T {
	return &v
}
