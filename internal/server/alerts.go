package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/store"
)

func registerChannels(api huma.API, e *alerting.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-channel",
		Method:        http.MethodPost,
		Path:          "/channels",
		Summary:       "Create notification channel",
		Tags:          []string{"alerting"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body alerting.ChannelInput `json:"body"`
	}) (*struct {
		Body store.Channel `json:"body"`
	}, error) {
		ch, err := e.AddChannel(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.Channel `json:"body"`
		}{Body: ch}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-channels",
		Method:      http.MethodGet,
		Path:        "/channels",
		Summary:     "List notification channels",
		Tags:        []string{"alerting"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []store.Channel `json:"body"`
	}, error) {
		items, err := e.ListChannels(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.Channel `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-channel",
		Method:      http.MethodPatch,
		Path:        "/channels/{channel_id}",
		Summary:     "Update notification channel",
		Tags:        []string{"alerting"},
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ChannelID string                `path:"channel_id"`
		Body      alerting.ChannelPatch `json:"body"`
	}) (*struct {
		Body store.Channel `json:"body"`
	}, error) {
		ch, err := e.UpdateChannel(ctx, input.ChannelID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.Channel `json:"body"`
		}{Body: ch}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-channel",
		Method:        http.MethodDelete,
		Path:          "/channels/{channel_id}",
		Summary:       "Delete a notification channel no rule uses",
		Tags:          []string{"alerting"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ChannelID string `path:"channel_id"`
	}) (*struct{}, error) {
		if err := e.DeleteChannel(ctx, input.ChannelID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "test-channel",
		Method:      http.MethodPost,
		Path:        "/channels/{channel_id}/test",
		Summary:     "Send a test notification",
		Tags:        []string{"alerting"},
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ChannelID string `path:"channel_id"`
	}) (*struct {
		Body alerting.ActionResult `json:"body"`
	}, error) {
		res, err := e.TestChannel(ctx, input.ChannelID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body alerting.ActionResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerRules(api huma.API, e *alerting.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-rule",
		Method:        http.MethodPost,
		Path:          "/rules",
		Summary:       "Create alert rule",
		Tags:          []string{"alerting"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RuleRequest `json:"body"`
	}) (*struct {
		Body store.Rule `json:"body"`
	}, error) {
		r, err := e.AddRule(ctx, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.Rule `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/rules",
		Summary:     "List alert rules",
		Tags:        []string{"alerting"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []store.Rule `json:"body"`
	}, error) {
		items, err := e.ListRules(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.Rule `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-rule-enabled",
		Method:      http.MethodPatch,
		Path:        "/rules/{rule_id}",
		Summary:     "Enable or disable an alert rule",
		Tags:        []string{"alerting"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RuleID string         `path:"rule_id"`
		Body   EnabledRequest `json:"body"`
	}) (*struct {
		Body store.Rule `json:"body"`
	}, error) {
		r, err := e.SetRuleEnabled(ctx, input.RuleID, input.Body.Enabled)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.Rule `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-rule",
		Method:        http.MethodDelete,
		Path:          "/rules/{rule_id}",
		Summary:       "Delete an alert rule",
		Tags:          []string{"alerting"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RuleID string `path:"rule_id"`
	}) (*struct{}, error) {
		if err := e.DeleteRule(ctx, input.RuleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTemplates(api huma.API, e *alerting.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create notification template",
		Tags:          []string{"alerting"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body alerting.TemplateInput `json:"body"`
	}) (*struct {
		Body store.Template `json:"body"`
	}, error) {
		t, err := e.CreateTemplate(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body store.Template `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List notification templates",
		Tags:        []string{"alerting"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []store.Template `json:"body"`
	}, error) {
		items, err := e.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.Template `json:"body"`
		}{Body: items}, nil
	})
}

func registerAlerts(api huma.API, e *alerting.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "send-alert",
		Method:      http.MethodPost,
		Path:        "/alerts",
		Summary:     "Route an alert through matching rules",
		Description: "Channel failures are reported per action; the request itself succeeds.",
		Tags:        []string{"alerting"},
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body alerting.Alert `json:"body"`
	}) (*struct {
		Body alerting.DispatchResult `json:"body"`
	}, error) {
		res, err := e.SendAlert(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body alerting.DispatchResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sent",
		Method:      http.MethodGet,
		Path:        "/alerts/sent",
		Summary:     "List delivery records, newest first",
		Tags:        []string{"alerting"},
	}, func(ctx context.Context, input *struct {
		RuleID    string `query:"rule"`
		ChannelID string `query:"channel"`
		Status    string `query:"status"`
		Limit     int    `query:"limit" default:"100" minimum:"0"`
	}) (*struct {
		Body []store.SentNotification `json:"body"`
	}, error) {
		items, err := e.ListSent(ctx, alerting.SentFilter{
			RuleID:    input.RuleID,
			ChannelID: input.ChannelID,
			Status:    input.Status,
			Page:      store.Page{Limit: input.Limit},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []store.SentNotification `json:"body"`
		}{Body: items}, nil
	})
}
