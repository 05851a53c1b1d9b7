package core

import (
	"fmt"
	"sort"

	"carerules/pkg/ruleapi"
)

// PluginMetadata stores metadata describing an installed rule pack.
type PluginMetadata struct {
	Name       string
	Version    string
	Rules      int
	Validators int
}

type stagedRule struct {
	entityType string
	trigger    string
	rule       ruleapi.Rule
}

type stagedValidator struct {
	entityType string
	validator  ruleapi.Validator
}

// pluginRegistry accumulates plugin contributions so a failing Register
// leaves the engine untouched.
type pluginRegistry struct {
	rules      []stagedRule
	validators []stagedValidator
}

func (r *pluginRegistry) AddBusinessRule(entityType, trigger string, rule ruleapi.Rule) error {
	if entityType == "" || trigger == "" {
		return fmt.Errorf("business rule requires entity type and trigger")
	}
	if rule == nil {
		return fmt.Errorf("business rule for %s/%s is nil", entityType, trigger)
	}
	r.rules = append(r.rules, stagedRule{entityType: entityType, trigger: trigger, rule: rule})
	return nil
}

func (r *pluginRegistry) AddValidator(entityType string, validator ruleapi.Validator) error {
	if entityType == "" {
		return fmt.Errorf("validator requires entity type")
	}
	if validator == nil {
		return fmt.Errorf("validator for %s is nil", entityType)
	}
	r.validators = append(r.validators, stagedValidator{entityType: entityType, validator: validator})
	return nil
}

// InstallPlugin registers a rule pack's rules and validators with the engine.
func (e *Engine) InstallPlugin(plugin ruleapi.Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	if e.sealed.Load() {
		return PluginMetadata{}, ErrEngineSealed
	}
	if _, ok := e.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	staged := &pluginRegistry{}
	if err := plugin.Register(staged); err != nil {
		return PluginMetadata{}, fmt.Errorf("register plugin %s: %w", plugin.Name(), err)
	}
	for _, r := range staged.rules {
		if err := e.AddBusinessRule(r.entityType, r.trigger, r.rule); err != nil {
			return PluginMetadata{}, err
		}
	}
	for _, v := range staged.validators {
		if err := e.AddValidator(v.entityType, v.validator); err != nil {
			return PluginMetadata{}, err
		}
	}

	meta := PluginMetadata{
		Name:       plugin.Name(),
		Version:    plugin.Version(),
		Rules:      len(staged.rules),
		Validators: len(staged.validators),
	}
	e.plugins[plugin.Name()] = meta
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins sorted by name.
func (e *Engine) RegisteredPlugins() []PluginMetadata {
	out := make([]PluginMetadata, 0, len(e.plugins))
	for _, meta := range e.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
