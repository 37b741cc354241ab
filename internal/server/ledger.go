package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/anthropic/agentwatch/internal/ledger"
	"github.com/anthropic/agentwatch/internal/store"
)

func registerActivities(api huma.API, l *ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Record an agent activity",
		Tags:          []string{"ledger"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ledger.ActivityInput `json:"body"`
	}) (*struct {
		Body ledger.Recorded `json:"body"`
	}, error) {
		rec, err := l.RecordActivity(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ledger.Recorded `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities, newest first",
		Tags:        []string{"ledger"},
	}, func(ctx context.Context, input *struct {
		AgentID     string `query:"agent"`
		ProjectPath string `query:"project"`
		Limit       int    `query:"limit" default:"100" minimum:"0"`
		Offset      int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body []store.Activity `json:"body"`
	}, error) {
		items, err := l.ListActivities(ctx, store.ActivityFilter{
			AgentID:     input.AgentID,
			ProjectPath: input.ProjectPath,
			Newest:      true,
			Page:        store.Page{Limit: input.Limit, Offset: input.Offset},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.Activity `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-agents",
		Method:      http.MethodGet,
		Path:        "/agents/active",
		Summary:     "Agents seen in the last day",
		Tags:        []string{"ledger"},
	}, func(ctx context.Context, input *struct {
		ProjectPath string `query:"project"`
	}) (*struct {
		Body []ledger.AgentStatus `json:"body"`
	}, error) {
		agents, err := l.ActiveAgents(ctx, input.ProjectPath)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ledger.AgentStatus `json:"body"`
		}{Body: agents}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "metrics-summary",
		Method:      http.MethodGet,
		Path:        "/metrics/summary",
		Summary:     "Aggregate metric samples over a timeframe",
		Tags:        []string{"ledger"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Timeframe string `query:"timeframe" doc:"last_hour, last_day, last_week or last_month"`
		AgentID   string `query:"agent"`
	}) (*struct {
		Body ledger.MetricsReport `json:"body"`
	}, error) {
		rep, err := l.MetricsSummary(ctx, input.Timeframe, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ledger.MetricsReport `json:"body"`
		}{Body: rep}, nil
	})
}

func registerTasks(api huma.API, l *ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ledger.TaskInput `json:"body"`
	}) (*struct {
		Body store.Task `json:"body"`
	}, error) {
		t, err := l.CreateTask(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Description: "active=true returns pending, in-progress and blocked tasks by priority.",
		Tags:        []string{"tasks"},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" doc:"Comma separated statuses"`
		AgentID     string `query:"agent"`
		ProjectPath string `query:"project"`
		Active      bool   `query:"active"`
		Limit       int    `query:"limit" minimum:"0"`
		Offset      int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body []store.Task `json:"body"`
	}, error) {
		var (
			items []store.Task
			err   error
		)
		if input.Active {
			items, err = l.ActiveTasks(ctx, input.ProjectPath)
		} else {
			items, err = l.ListTasks(ctx, store.TaskFilter{
				Statuses:      splitList(input.Status),
				AssignedAgent: input.AgentID,
				ProjectPath:   input.ProjectPath,
				Page:          store.Page{Limit: input.Limit, Offset: input.Offset},
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body store.Task `json:"body"`
	}, error) {
		t, err := l.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Update task status",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   TaskStatusRequest `json:"body"`
	}) (*struct {
		Body store.Task `json:"body"`
	}, error) {
		t, err := l.UpdateTaskStatus(ctx, input.Body.update(input.TaskID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.Task `json:"body"`
		}{Body: t}, nil
	})
}
