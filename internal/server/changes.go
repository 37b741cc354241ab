package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/anthropic/agentwatch/internal/analyzer"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
)

// windowStart resolves an optional timeframe query value; "" means no bound.
func windowStart(timeframe string) (time.Time, error) {
	if timeframe == "" {
		return time.Time{}, nil
	}
	tf, err := pipeline.ParseTimeframe(timeframe)
	if err != nil {
		return time.Time{}, err
	}
	start, _ := tf.Window(time.Now().UTC())
	return start, nil
}

func registerChanges(api huma.API, a *analyzer.Analyzer) {
	huma.Register(api, huma.Operation{
		OperationID:   "track-changes",
		Method:        http.MethodPost,
		Path:          "/changes",
		Summary:       "Record a batch of file changes",
		Tags:          []string{"changes"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body analyzer.ChangeBatch `json:"body"`
	}) (*struct {
		Body []store.ChangeRecord `json:"body"`
	}, error) {
		recs, err := a.TrackChanges(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.ChangeRecord `json:"body"`
		}{Body: recs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-changes",
		Method:      http.MethodGet,
		Path:        "/changes",
		Summary:     "List change records, newest first",
		Tags:        []string{"changes"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectPath string `query:"project"`
		AgentID     string `query:"agent"`
		File        string `query:"file"`
		ChangeType  string `query:"type"`
		Impact      string `query:"impact" doc:"Comma separated impact levels"`
		Timeframe   string `query:"timeframe"`
		Limit       int    `query:"limit" default:"100" minimum:"0"`
		Offset      int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body []store.ChangeRecord `json:"body"`
	}, error) {
		since, err := windowStart(input.Timeframe)
		if err != nil {
			return nil, handleError(err)
		}
		recs, err := a.ListChanges(ctx, store.ChangeFilter{
			ProjectPath:  input.ProjectPath,
			AgentID:      input.AgentID,
			FilePath:     input.File,
			ChangeType:   input.ChangeType,
			ImpactLevels: splitList(input.Impact),
			Since:        since,
			Newest:       true,
			Page:         store.Page{Limit: input.Limit, Offset: input.Offset},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.ChangeRecord `json:"body"`
		}{Body: recs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-stats",
		Method:      http.MethodGet,
		Path:        "/changes/stats",
		Summary:     "Change counts by type, agent, impact and path",
		Tags:        []string{"changes"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectPath string `query:"project"`
		Timeframe   string `query:"timeframe"`
		Top         int    `query:"top" minimum:"0"`
	}) (*struct {
		Body analyzer.Stats `json:"body"`
	}, error) {
		since, err := windowStart(input.Timeframe)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := a.ChangeStats(ctx, input.ProjectPath, since, input.Top)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analyzer.Stats `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analyze-impact",
		Method:      http.MethodPost,
		Path:        "/changes/impact",
		Summary:     "Run a risk, dependency or complexity analysis over files",
		Tags:        []string{"changes"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ImpactRequest `json:"body"`
	}) (*struct {
		Body analyzer.ImpactReport `json:"body"`
	}, error) {
		rep, err := a.AnalyzeImpact(ctx, input.Body.Files, input.Body.ProjectPath, input.Body.AnalysisType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analyzer.ImpactReport `json:"body"`
		}{Body: rep}, nil
	})
}

func registerMonitors(api huma.API, a *analyzer.Analyzer) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-monitor",
		Method:        http.MethodPost,
		Path:          "/monitors",
		Summary:       "Start a monitoring session",
		Tags:          []string{"monitors"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body analyzer.MonitorConfig `json:"body"`
	}) (*struct {
		Body MonitorResponse `json:"body"`
	}, error) {
		id, err := a.SetupMonitoring(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MonitorResponse `json:"body"`
		}{Body: MonitorResponse{SessionID: id}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-monitors",
		Method:      http.MethodGet,
		Path:        "/monitors",
		Summary:     "List monitoring sessions",
		Tags:        []string{"monitors"},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" doc:"active or stopped; empty lists all"`
	}) (*struct {
		Body []analyzer.SessionInfo `json:"body"`
	}, error) {
		items, err := a.ListSessions(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []analyzer.SessionInfo `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "stop-monitor",
		Method:        http.MethodDelete,
		Path:          "/monitors/{session_id}",
		Summary:       "Stop a monitoring session",
		Tags:          []string{"monitors"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct{}, error) {
		if err := a.StopMonitoring(ctx, input.SessionID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
