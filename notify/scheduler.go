package notify

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs one-shot reminder jobs from a background goroutine. It is an
// owned object: main constructs it, starts it, and shuts it down on exit.
// Pending jobs live in memory only and do not survive a restart.
type Scheduler struct {
	s      gocron.Scheduler
	mailer *Mailer
}

func NewScheduler(mailer *Mailer) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{s: s, mailer: mailer}, nil
}

func (sc *Scheduler) Start() {
	sc.s.Start()
}

func (sc *Scheduler) Stop() error {
	return sc.s.Shutdown()
}

// ScheduleReminder registers a one-shot job that mails the reminder at the
// given time. The time must be in the future. A failed send is logged, not
// retried.
func (sc *Scheduler) ScheduleReminder(recipient, message string, at time.Time) error {
	return sc.scheduleAt(at, func() {
		if err := sc.mailer.Send(recipient, "Project Reminder", message); err != nil {
			log.Printf("Error sending reminder to %s: %v", recipient, err)
		}
	})
}

func (sc *Scheduler) scheduleAt(at time.Time, task func()) error {
	if !at.After(time.Now()) {
		return fmt.Errorf("reminder time %s is not in the future", at.Format(time.RFC3339))
	}

	_, err := sc.s.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(task),
	)
	return err
}
