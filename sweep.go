package main

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// StartSweepScheduler runs SweepChannel on the configured cron schedule.
// The returned cron is already started; Stop() it to shut down.
func StartSweepScheduler(cfg Config, triager *Triager) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(cfg.SweepSchedule, func() {
		if err := triager.SweepChannel(context.Background()); err != nil {
			log.Printf("scheduled sweep error: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep_schedule %q: %w", cfg.SweepSchedule, err)
	}
	c.Start()
	log.Printf("sweep scheduled cron=%q channel=%s", cfg.SweepSchedule, cfg.TriageChannelID)
	return c, nil
}
