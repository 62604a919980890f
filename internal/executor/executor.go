// Package executor performs the side effect described by a task's instruction.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/RezaEskandarii/procengine/internal/callback"
	"github.com/RezaEskandarii/procengine/types"
)

// Routing keys for instructions handed off to the message broker.
const (
	RouteCorrespondence = "correspondence"
	RouteEformidling    = "eformidling"
	RouteFiksArkiv      = "fiks-arkiv"
	RouteAltinnEvents   = "altinn-events"
)

// Routes lists every routing key the executor publishes to.
var Routes = []string{RouteCorrespondence, RouteEformidling, RouteFiksArkiv, RouteAltinnEvents}

type AppClient interface {
	Call(ctx context.Context, appID, instanceID, command string, payload callback.Payload) error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
}

// Message is the body published for broker-bound instructions.
type Message struct {
	JobKey     string          `json:"job_key"`
	TaskID     string          `json:"task_id"`
	AppID      string          `json:"app_id"`
	InstanceID string          `json:"instance_id"`
	Actor      types.Actor     `json:"actor"`
	Payload    json.RawMessage `json:"payload"`
}

type Executor struct {
	app       AppClient
	publisher Publisher
	logger    *slog.Logger
}

func New(app AppClient, publisher Publisher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{app: app, publisher: publisher, logger: logger}
}

// Execute runs the task's instruction. It never panics: a panicking handler
// is reported as a retryable error.
func (e *Executor) Execute(ctx context.Context, task *types.Task) (result types.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task handler panicked", "job", task.JobKey, "task", task.ID, "panic", r)
			result = types.Error(fmt.Sprintf("panic: %v", r))
		}
	}()

	switch in := task.Instruction.(type) {
	case types.MoveProcessForward:
		return e.moveProcessForward(ctx, task, in)
	case types.ExecuteServiceTask:
		return e.executeServiceTask(ctx, task, in)
	case types.ExecuteInterfaceHooks:
		return e.executeInterfaceHooks(ctx, task, in)
	case types.SendCorrespondence:
		return e.publish(ctx, task, RouteCorrespondence, in.Payload)
	case types.SendEformidling:
		return e.publish(ctx, task, RouteEformidling, in.Payload)
	case types.SendFiksArkiv:
		return e.publish(ctx, task, RouteFiksArkiv, in.Payload)
	case types.PublishAltinnEvent:
		return e.publish(ctx, task, RouteAltinnEvents, in.Payload)
	case nil:
		return types.Fatal("task has no instruction")
	default:
		return types.Fatal(fmt.Sprintf("unknown instruction: %s", in.Kind()))
	}
}

func (e *Executor) moveProcessForward(ctx context.Context, task *types.Task, in types.MoveProcessForward) types.ExecutionResult {
	return e.callApp(ctx, task, callback.CommandMoveProcessForward, in)
}

func (e *Executor) executeServiceTask(ctx context.Context, task *types.Task, in types.ExecuteServiceTask) types.ExecutionResult {
	return e.callApp(ctx, task, callback.CommandExecuteServiceTask, in)
}

func (e *Executor) executeInterfaceHooks(ctx context.Context, task *types.Task, in types.ExecuteInterfaceHooks) types.ExecutionResult {
	return e.callApp(ctx, task, callback.CommandExecuteInterfaceHooks, in)
}

func (e *Executor) callApp(ctx context.Context, task *types.Task, command string, metadata any) types.ExecutionResult {
	if e.app == nil {
		return types.Fatal("no app callback client configured")
	}
	err := e.app.Call(ctx, task.AppID, task.InstanceID, command, callback.Payload{
		Actor:    task.Actor,
		Metadata: metadata,
	})
	if err != nil {
		e.logger.Warn("app callback failed", "job", task.JobKey, "task", task.ID, "command", command, "error", err)
		return types.Error(err.Error())
	}
	return types.Success()
}

func (e *Executor) publish(ctx context.Context, task *types.Task, route string, payload json.RawMessage) types.ExecutionResult {
	if e.publisher == nil {
		return types.Fatal("no message broker configured")
	}
	body, err := json.Marshal(Message{
		JobKey:     task.JobKey,
		TaskID:     task.ID,
		AppID:      task.AppID,
		InstanceID: task.InstanceID,
		Actor:      task.Actor,
		Payload:    payload,
	})
	if err != nil {
		return types.Fatal(fmt.Sprintf("failed to encode message: %v", err))
	}
	if err := e.publisher.Publish(ctx, route, body); err != nil {
		e.logger.Warn("publish failed", "job", task.JobKey, "task", task.ID, "route", route, "error", err)
		return types.Error(err.Error())
	}
	return types.Success()
}
