package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/report"
	"github.com/anthropic/agentwatch/internal/store"
)

// RenderReportRequest renders a compiled report through a stored template.
type RenderReportRequest struct {
	TemplateID string            `json:"templateId"`
	Request    report.Request    `json:"request,omitempty"`
	Vars       map[string]string `json:"vars,omitempty"`
}

var contentTypes = map[string]string{
	string(report.FormatJSON):     "application/json",
	string(report.FormatText):     "text/plain; charset=utf-8",
	string(report.FormatHTML):     "text/html; charset=utf-8",
	string(report.FormatPDF):      "text/html; charset=utf-8",
	string(report.FormatMarkdown): "text/markdown; charset=utf-8",
}

func registerReports(api huma.API, c *report.Compiler) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Generate an activity summary report",
		Tags:          []string{"reports"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body report.Request `json:"body"`
	}) (*struct {
		Body store.GeneratedReport `json:"body"`
	}, error) {
		rep, err := c.Generate(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.GeneratedReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "Latest generated reports, newest first",
		Tags:        []string{"reports"},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"10" minimum:"1"`
	}) (*struct {
		Body []store.GeneratedReport `json:"body"`
	}, error) {
		items, err := c.ListLatest(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.GeneratedReport `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}",
		Summary:     "Get report metadata",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
	}) (*struct {
		Body store.GeneratedReport `json:"body"`
	}, error) {
		rep, err := c.Get(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.GeneratedReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report-artifact",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}/artifact",
		Summary:     "Download the rendered report",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
	}) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		rep, data, err := c.ReadArtifact(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		ct := contentTypes[rep.Format]
		if ct == "" {
			ct = "application/octet-stream"
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: ct, Body: data}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "render-report",
		Method:      http.MethodPost,
		Path:        "/reports/render",
		Summary:     "Render a report through a stored template",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body RenderReportRequest `json:"body"`
	}) (*struct {
		Body report.Rendered `json:"body"`
	}, error) {
		out, err := c.GenerateFromTemplate(ctx, input.Body.TemplateID, input.Body.Request, alerting.Vars(input.Body.Vars))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body report.Rendered `json:"body"`
		}{Body: out}, nil
	})
}
