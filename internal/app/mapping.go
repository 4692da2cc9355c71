package app

import (
	"fmt"
	"time"

	"zapsend/internal/ai"
	"zapsend/internal/config"
	"zapsend/internal/dispatch"
	"zapsend/internal/schedule"
	"zapsend/internal/store"
	"zapsend/internal/zapi"
)

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	path := cfg.Storage.Path
	if path == "" {
		path = "./data/zapsend.db"
	}
	return store.Config{Path: path, BusyTimeout: busy}, nil
}

func mapZAPIConfig(cfg *config.Config) (zapi.Config, error) {
	timeout, err := config.ParseDurationOrDefault("zapi.timeout", cfg.ZAPI.Timeout, 30*time.Second)
	if err != nil {
		return zapi.Config{}, err
	}
	return zapi.Config{
		InstanceID:    cfg.ZAPI.InstanceID,
		InstanceToken: cfg.ZAPI.InstanceToken,
		SendTextURL:   cfg.ZAPI.SendTextURL,
		ClientToken:   cfg.ZAPI.ClientToken,
		Timeout:       timeout,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatch
	if d.Workers < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.workers must be >= 0")
	}
	if d.QueueSize < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.queue_size must be >= 0")
	}
	sendTimeout, err := config.ParseDurationOrDefault("dispatch.send_timeout", d.SendTimeout, 30*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	statusTTL, err := config.ParseDurationOrDefault("dispatch.status_ttl", d.StatusTTL, 24*time.Hour)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Workers:       d.Workers,
		QueueSize:     d.QueueSize,
		RatePerSec:    d.RatePerSec,
		SendTimeout:   sendTimeout,
		StatusMax:     d.StatusMax,
		StatusTTL:     statusTTL,
		DefaultRegion: d.DefaultRegion,
	}, nil
}

func mapAIConfig(cfg *config.Config) (ai.Config, error) {
	a := cfg.AI
	switch a.Provider {
	case "", ai.ProviderOpenRouter, ai.ProviderOllama:
	default:
		return ai.Config{}, fmt.Errorf("ai.provider: unknown %q", a.Provider)
	}
	timeout, err := config.ParseDurationOrDefault("ai.timeout", a.Timeout, 30*time.Second)
	if err != nil {
		return ai.Config{}, err
	}
	return ai.Config{
		Provider:         a.Provider,
		OpenRouterAPIKey: a.OpenRouterAPIKey,
		OpenRouterModel:  a.OpenRouterModel,
		OpenRouterURL:    a.OpenRouterURL,
		OllamaHost:       a.OllamaHost,
		OllamaModel:      a.OllamaModel,
		Timeout:          timeout,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (schedule.Config, error) {
	s := cfg.Scheduler
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	tick, err := config.ParseDurationOrDefault("scheduler.tick", s.Tick, 15*time.Second)
	if err != nil {
		return schedule.Config{}, err
	}
	loc := time.Local
	if s.Timezone != "" {
		loc, err = time.LoadLocation(s.Timezone)
		if err != nil {
			return schedule.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", s.Timezone, err)
		}
	}
	return schedule.Config{
		Enabled:       enabled,
		Tick:          tick,
		Location:      loc,
		DefaultRegion: cfg.Dispatch.DefaultRegion,
	}, nil
}
