package recon

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScheduleEntry is one cron-driven rescan from config.
type ScheduleEntry struct {
	Target  string
	Profile string
	Cron    string
}

// Rescanner re-runs configured scans on a cron schedule and logs what
// changed against the previous report. A tick that fires while the same
// entry is still running is skipped, not queued.
type Rescanner struct {
	svc  *Service
	cron *cron.Cron
}

func NewRescanner(svc *Service, entries []ScheduleEntry) (*Rescanner, error) {
	c := cron.New()
	for _, e := range entries {
		e := e
		var running atomic.Bool
		_, err := c.AddFunc(e.Cron, func() {
			if !running.CompareAndSwap(false, true) {
				logrus.WithField("target", e.Target).Warn("previous rescan still running, skipping tick")
				return
			}
			defer running.Store(false)
			defer func() {
				if r := recover(); r != nil {
					logrus.WithFields(logrus.Fields{"target": e.Target, "panic": r}).Error("rescan panicked")
				}
			}()
			rescan(svc, e)
		})
		if err != nil {
			return nil, fmt.Errorf("bad cron expression %q for %s: %w", e.Cron, e.Target, err)
		}
	}
	return &Rescanner{svc: svc, cron: c}, nil
}

// Start begins firing schedules in the background.
func (r *Rescanner) Start() { r.cron.Start() }

// Stop halts the schedule; a scan already in flight keeps running.
func (r *Rescanner) Stop() { r.cron.Stop() }

func rescan(svc *Service, e ScheduleEntry) {
	log := logrus.WithFields(logrus.Fields{"target": e.Target, "profile": e.Profile})
	log.Info("scheduled rescan started")

	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: e.Target, Profile: e.Profile})
	if err != nil {
		log.WithError(err).Error("scheduled rescan failed")
		return
	}

	diff, err := svc.Diff(context.Background(), e.Target)
	if err != nil {
		log.WithError(err).Warn("diff after rescan failed")
		return
	}
	log.WithFields(logrus.Fields{
		"scan_id": report.ID,
		"status":  report.Status,
		"added":   len(diff.Diff.Added),
		"removed": len(diff.Diff.Removed),
	}).Info("scheduled rescan finished")
	for _, f := range diff.Diff.Added {
		log.WithFields(logrus.Fields{"kind": f.Kind, "value": f.Value, "tools": f.Tools}).Info("new finding")
	}
	for _, f := range diff.Diff.Removed {
		log.WithFields(logrus.Fields{"kind": f.Kind, "value": f.Value}).Info("finding gone")
	}
}
