package jobs

import (
	"github.com/sirupsen/logrus"

	"github.com/sorteohub/sorteo-backend/services"
)

// StagingCleanupJob drops staged imports whose TTL has passed, so an
// abandoned upload does not hold parsed rows in memory forever
type StagingCleanupJob struct {
	Staging *services.StagingService
}

func NewStagingCleanupJob(staging *services.StagingService) *StagingCleanupJob {
	return &StagingCleanupJob{Staging: staging}
}

func (j *StagingCleanupJob) Run() {
	logrus.Debug("Starting staging cleanup job")
	removed := j.Staging.PurgeExpired()
	logrus.WithFields(logrus.Fields{
		"removed":   removed,
		"remaining": j.Staging.Len(),
	}).Debug("Staging cleanup job completed")
}
