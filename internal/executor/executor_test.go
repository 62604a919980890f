package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/RezaEskandarii/procengine/internal/callback"
	"github.com/RezaEskandarii/procengine/internal/test/mocks"
	"github.com/RezaEskandarii/procengine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appCall struct {
	appID, instanceID, command string
	payload                    callback.Payload
}

type mockAppClient struct {
	calls []appCall
	err   error
	panic bool
}

func (m *mockAppClient) Call(ctx context.Context, appID, instanceID, command string, payload callback.Payload) error {
	if m.panic {
		panic("handler exploded")
	}
	m.calls = append(m.calls, appCall{appID, instanceID, command, payload})
	return m.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func task(in types.Instruction) *types.Task {
	return &types.Task{
		ID:          "t1",
		JobKey:      "job-1",
		AppID:       "ttd/app",
		InstanceID:  "50001/abc",
		Actor:       types.Actor{UserIDOrOrgNumber: "1337"},
		Instruction: in,
	}
}

func TestExecute_AppCommands(t *testing.T) {
	tests := []struct {
		name    string
		in      types.Instruction
		command string
	}{
		{"move process forward", types.MoveProcessForward{From: "A", To: "B"}, callback.CommandMoveProcessForward},
		{"service task", types.ExecuteServiceTask{ServiceTaskID: "pdf"}, callback.CommandExecuteServiceTask},
		{"interface hooks", types.ExecuteInterfaceHooks{}, callback.CommandExecuteInterfaceHooks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &mockAppClient{}
			e := New(app, nil, quietLogger())

			res := e.Execute(context.Background(), task(tt.in))
			assert.True(t, res.IsSuccess())
			require.Len(t, app.calls, 1)
			assert.Equal(t, tt.command, app.calls[0].command)
			assert.Equal(t, "ttd/app", app.calls[0].appID)
			assert.Equal(t, "50001/abc", app.calls[0].instanceID)
			assert.Equal(t, tt.in, app.calls[0].payload.Metadata)
		})
	}
}

func TestExecute_AppCommandFailureIsRetryable(t *testing.T) {
	app := &mockAppClient{err: errors.New("503")}
	e := New(app, nil, quietLogger())

	res := e.Execute(context.Background(), task(types.MoveProcessForward{From: "A", To: "B"}))
	assert.Equal(t, types.OutcomeError, res.Outcome)
	assert.Contains(t, res.Message, "503")
}

func TestExecute_PublishRoutes(t *testing.T) {
	payload := json.RawMessage(`{"x":1}`)
	tests := []struct {
		in    types.Instruction
		route string
	}{
		{types.SendCorrespondence{Payload: payload}, RouteCorrespondence},
		{types.SendEformidling{Payload: payload}, RouteEformidling},
		{types.SendFiksArkiv{Payload: payload}, RouteFiksArkiv},
		{types.PublishAltinnEvent{Payload: payload}, RouteAltinnEvents},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			var gotRoute string
			var gotBody []byte
			broker := &mocks.MockMessageBroker{
				PublishFunc: func(ctx context.Context, routingKey string, message []byte) error {
					gotRoute = routingKey
					gotBody = message
					return nil
				},
			}
			e := New(nil, broker, quietLogger())

			res := e.Execute(context.Background(), task(tt.in))
			require.True(t, res.IsSuccess(), res.Message)
			assert.Equal(t, tt.route, gotRoute)

			var msg Message
			require.NoError(t, json.Unmarshal(gotBody, &msg))
			assert.Equal(t, "job-1", msg.JobKey)
			assert.JSONEq(t, `{"x":1}`, string(msg.Payload))
		})
	}
}

func TestExecute_PublishFailure(t *testing.T) {
	broker := &mocks.MockMessageBroker{
		PublishFunc: func(ctx context.Context, routingKey string, message []byte) error {
			return errors.New("channel closed")
		},
	}
	e := New(nil, broker, quietLogger())

	res := e.Execute(context.Background(), task(types.SendCorrespondence{Payload: json.RawMessage(`{}`)}))
	assert.Equal(t, types.OutcomeError, res.Outcome)
}

func TestExecute_FatalCases(t *testing.T) {
	e := New(nil, nil, quietLogger())

	tests := []struct {
		name string
		in   types.Instruction
	}{
		{"unknown instruction", types.UnknownInstruction{Name: "teleport"}},
		{"nil instruction", nil},
		{"no app client", types.MoveProcessForward{From: "A", To: "B"}},
		{"no publisher", types.SendFiksArkiv{Payload: json.RawMessage(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Execute(context.Background(), task(tt.in))
			assert.Equal(t, types.OutcomeFatal, res.Outcome)
		})
	}
}

func TestExecute_RecoversPanic(t *testing.T) {
	e := New(&mockAppClient{panic: true}, nil, quietLogger())

	res := e.Execute(context.Background(), task(types.ExecuteServiceTask{ServiceTaskID: "x"}))
	assert.Equal(t, types.OutcomeError, res.Outcome)
	assert.Contains(t, res.Message, "handler exploded")
}
