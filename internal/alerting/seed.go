package alerting

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/store"
)

// Seed is the YAML document accepted by LoadSeed.
//
//	channels:
//	  - name: ops-hook
//	    type: webhook
//	    configuration: {url: "https://hooks.example.com/agentwatch"}
//	templates:
//	  - name: impact
//	    subject: "[{{priority}}] {{filePath}}"
//	    body: "{{message}}"
//	rules:
//	  - name: high impact
//	    priority: 10
//	    conditions: {impact: [high, critical]}
//	    actions:
//	      - channel: ops-hook
//	        template: impact
type Seed struct {
	Channels  []ChannelInput  `yaml:"channels"`
	Templates []TemplateInput `yaml:"templates"`
	Rules     []SeedRule      `yaml:"rules"`
}

// SeedRule is a rule whose actions name channels and templates by name or id.
type SeedRule struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Conditions  map[string]any `yaml:"conditions"`
	Priority    int            `yaml:"priority"`
	Enabled     *bool          `yaml:"enabled"`
	Actions     []SeedAction   `yaml:"actions"`
}

type SeedAction struct {
	Channel  string `yaml:"channel"`
	Template string `yaml:"template"`
}

// SeedResult counts what LoadSeed created and skipped.
type SeedResult struct {
	Channels  int `json:"channels"`
	Templates int `json:"templates"`
	Rules     int `json:"rules"`
	Skipped   int `json:"skipped"`
}

// LoadSeed imports channels, templates and rules from YAML, in that order.
// Entries whose name already exists are skipped, so a seed file can be
// applied on every start.
func (e *Engine) LoadSeed(ctx context.Context, data []byte) (SeedResult, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return SeedResult{}, errs.Validation("parse seed: %v", err)
	}
	var res SeedResult

	channels, err := e.ListChannels(ctx)
	if err != nil {
		return res, err
	}
	chanIDs := map[string]string{}
	for _, c := range channels {
		chanIDs[c.Name] = c.ID
		chanIDs[c.ID] = c.ID
	}
	for _, in := range seed.Channels {
		if _, ok := chanIDs[in.Name]; ok {
			res.Skipped++
			continue
		}
		c, err := e.AddChannel(ctx, in)
		if err != nil {
			return res, fmt.Errorf("seed channel %q: %w", in.Name, err)
		}
		chanIDs[c.Name] = c.ID
		chanIDs[c.ID] = c.ID
		res.Channels++
	}

	templates, err := e.ListTemplates(ctx)
	if err != nil {
		return res, err
	}
	tplIDs := map[string]string{}
	for _, t := range templates {
		tplIDs[t.Name] = t.ID
		tplIDs[t.ID] = t.ID
	}
	for _, in := range seed.Templates {
		if _, ok := tplIDs[in.Name]; ok {
			res.Skipped++
			continue
		}
		t, err := e.CreateTemplate(ctx, in)
		if err != nil {
			return res, fmt.Errorf("seed template %q: %w", in.Name, err)
		}
		tplIDs[t.Name] = t.ID
		tplIDs[t.ID] = t.ID
		res.Templates++
	}

	rules, err := e.ListRules(ctx)
	if err != nil {
		return res, err
	}
	ruleNames := map[string]bool{}
	for _, r := range rules {
		ruleNames[r.Name] = true
	}
	for _, sr := range seed.Rules {
		if ruleNames[sr.Name] {
			res.Skipped++
			continue
		}
		in := RuleInput{
			Name:        sr.Name,
			Description: sr.Description,
			Conditions:  sr.Conditions,
			Priority:    sr.Priority,
			Enabled:     sr.Enabled,
		}
		for _, a := range sr.Actions {
			chID, ok := chanIDs[a.Channel]
			if !ok {
				return res, errs.Validation("seed rule %q: unknown channel %q", sr.Name, a.Channel)
			}
			act := store.RuleAction{ChannelID: chID}
			if a.Template != "" {
				tID, ok := tplIDs[a.Template]
				if !ok {
					return res, errs.Validation("seed rule %q: unknown template %q", sr.Name, a.Template)
				}
				act.TemplateID = tID
			}
			in.Actions = append(in.Actions, act)
		}
		if _, err := e.AddRule(ctx, in); err != nil {
			return res, fmt.Errorf("seed rule %q: %w", sr.Name, err)
		}
		ruleNames[sr.Name] = true
		res.Rules++
	}

	e.log.Info("alerting seed loaded", "channels", res.Channels, "templates", res.Templates, "rules", res.Rules, "skipped", res.Skipped)
	return res, nil
}
