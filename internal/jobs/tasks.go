// Package jobs holds the background work that runs outside request handling:
// the fulfillment reconciliation sweep, the archive integrity check, and
// asynchronous PDF rendering.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueDocuments carries PDF rendering, kept separate so a slow
	// Gotenberg never starves the maintenance sweeps.
	QueueDocuments = "documents"

	// TaskFulfillmentReconcile recomputes delivery projections from the ledger.
	TaskFulfillmentReconcile = "fulfillment:reconcile"
	// TaskArchiveIntegrity verifies archived snapshots still parse.
	TaskArchiveIntegrity = "archive:integrity"
	// TaskRenderDocument renders one workflow document to PDF.
	TaskRenderDocument = "documents:render"
)

// RenderDocumentPayload identifies the document to render.
type RenderDocumentPayload struct {
	Kind     string `json:"kind"`
	SourceID int64  `json:"source_id"`
}

// NewFulfillmentReconcileTask constructs the reconciliation task.
func NewFulfillmentReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskFulfillmentReconcile, nil)
}

// NewArchiveIntegrityTask constructs the archive integrity task.
func NewArchiveIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskArchiveIntegrity, nil)
}

// NewRenderDocumentTask constructs a document rendering task.
func NewRenderDocumentTask(payload RenderDocumentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRenderDocument, data, asynq.Queue(QueueDocuments)), nil
}
