package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/mirefly/ragdex/internal/repo"
)

type ChatCleanupJob struct {
	sessions      *repo.SessionRepo
	retentionDays int
}

func NewChatCleanupJob(sessions *repo.SessionRepo, retentionDays int) *ChatCleanupJob {
	return &ChatCleanupJob{sessions: sessions, retentionDays: retentionDays}
}

func (j *ChatCleanupJob) Name() string {
	return "chat_cleanup"
}

func (j *ChatCleanupJob) Run(ctx context.Context) error {
	if j.sessions == nil || j.retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-time.Duration(j.retentionDays) * 24 * time.Hour).Unix()
	removed, err := j.sessions.DeleteStaleBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("stale chat sessions removed", zap.Int64("count", removed))
	}
	return nil
}
