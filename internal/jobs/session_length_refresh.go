package jobs

import (
	"context"

	"promptlens/internal/services"

	"github.com/sirupsen/logrus"
)

// SessionLengthRefreshJob re-materializes the cached session_length field
// for every project on a schedule. On-request materialization remains the
// authority — this job only narrows the staleness window for consumers that
// read sessions directly instead of going through the aggregation endpoints.
type SessionLengthRefreshJob struct {
	taskService  *services.TaskService
	materializer *services.SessionLengthMaterializer
	logger       *logrus.Logger
}

// NewSessionLengthRefreshJob creates the refresh job
func NewSessionLengthRefreshJob(taskService *services.TaskService, materializer *services.SessionLengthMaterializer, logger *logrus.Logger) *SessionLengthRefreshJob {
	return &SessionLengthRefreshJob{
		taskService:  taskService,
		materializer: materializer,
		logger:       logger,
	}
}

// Name implements Job
func (j *SessionLengthRefreshJob) Name() string {
	return "session_length_refresh"
}

// Run re-materializes session lengths project by project. A failing project
// is logged and skipped; the remaining projects still refresh.
func (j *SessionLengthRefreshJob) Run(ctx context.Context) error {
	projectIDs, err := j.taskService.ProjectIDs(ctx)
	if err != nil {
		return err
	}

	refreshed := 0
	for _, projectID := range projectIDs {
		if err := j.materializer.Materialize(ctx, projectID); err != nil {
			j.logger.WithFields(logrus.Fields{
				"project_id": projectID,
				"error":      err.Error(),
			}).Warn("Session length refresh failed for project")
			continue
		}
		refreshed++
	}

	j.logger.WithFields(logrus.Fields{
		"projects":  len(projectIDs),
		"refreshed": refreshed,
	}).Info("Session length refresh pass done")
	return nil
}
