package engine

import (
	"context"

	"dayplan/internal/events"
	"dayplan/internal/models"
)

// Subscribe wires task lifecycle events to background exports. Handlers
// return immediately; export errors are logged and never reach the
// publisher.
func (e *Engine) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTaskCreated, e.handler(models.OperationCreate))
	bus.Subscribe(events.EventTaskUpdated, e.handler(models.OperationUpdate))
	bus.Subscribe(events.EventTaskCompleted, e.handler(models.OperationComplete))
	bus.Subscribe(events.EventTaskDeleted, e.handler(models.OperationDelete))
}

func (e *Engine) handler(op string) events.EventHandler {
	return func(ev *events.Event) error {
		if !e.Enabled() {
			return nil
		}

		var payload events.TaskEventPayload
		if err := ev.Decode(&payload); err != nil {
			e.logger.Error().Err(err).Str("event", ev.Type).Msg("failed to decode task event")
			return nil
		}

		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()

			var err error
			ctx := context.Background()
			switch op {
			case models.OperationCreate:
				err = e.ExportNewTask(ctx, payload.TaskID)
			case models.OperationUpdate:
				err = e.ExportTaskModification(ctx, payload.TaskID)
			case models.OperationComplete:
				err = e.ExportTaskCompletion(ctx, payload.TaskID)
			case models.OperationDelete:
				err = e.ExportTaskDeletion(ctx, TaskRef{
					TaskID:           payload.TaskID,
					UserID:           payload.UserID,
					GoogleEventID:    payload.GoogleEventID,
					GoogleTaskID:     payload.GoogleTaskID,
					GoogleTaskListID: payload.GoogleTaskListID,
				})
			}
			if err != nil {
				e.logger.Warn().Err(err).Str("event", ev.Type).Int64("task_id", payload.TaskID).Msg("background export failed")
			}
		}()
		return nil
	}
}

// Wait blocks until every background export has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}
