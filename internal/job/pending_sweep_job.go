package job

import (
	"context"

	"github.com/mirefly/ragdex/internal/service"
)

type PendingSweepJob struct {
	ingest       *service.IngestService
	delaySeconds int64
}

func NewPendingSweepJob(ingest *service.IngestService, delaySeconds int64) *PendingSweepJob {
	return &PendingSweepJob{ingest: ingest, delaySeconds: delaySeconds}
}

func (j *PendingSweepJob) Name() string {
	return "pending_sweep"
}

func (j *PendingSweepJob) Run(ctx context.Context) error {
	if j.ingest == nil {
		return nil
	}
	delay := j.delaySeconds
	if delay <= 0 {
		delay = 60
	}
	return j.ingest.ProcessPending(ctx, delay)
}
