// Package plugin glues the backup engine to a host application: it registers
// the UI actions, runs the launch behaviour and forwards logs to the host.
// No error is returned to the host's UI; every outcome is logged.
package plugin

import (
	"context"
	"sync"

	"github.com/juju/clock"

	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
	"github.com/mythwright/nexus-config-backup/pkg/config"
	"github.com/mythwright/nexus-config-backup/pkg/engine"
	"github.com/mythwright/nexus-config-backup/pkg/hints"
	"github.com/mythwright/nexus-config-backup/pkg/metrics"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

// UI action labels.
const (
	ActionRunBackup = "Run Backup"
	ActionCleanup   = "Cleanup old backups"
)

// Definition is the metadata the host shows for the add-on.
type Definition struct {
	Signature      int32
	Name           string
	Version        string
	Author         string
	Description    string
	UpdateProvider string
	UpdateLink     string
}

// AddonDefinition returns the add-on's metadata.
func AddonDefinition() Definition {
	return Definition{
		Signature:      -32410,
		Name:           "Addon Config Backup Tool",
		Version:        buildinfo.Version,
		Author:         "Zyian",
		Description:    "A small tool to help keep your addons backed up in case of nuking your GW2 install folder",
		UpdateProvider: "github",
		UpdateLink:     "https://github.com/mythwright/nexus-config-backup",
	}
}

// Options configures Load.
type Options struct {
	Clock   clock.Clock
	Metrics metrics.Metrics
	// KeepLogSink leaves plog's current sink alone instead of routing it to the host.
	KeepLogSink bool
}

// Plugin is a loaded add-on instance.
type Plugin struct {
	host   Host
	store  ConfigStore
	engine *engine.Engine

	reporters sync.WaitGroup
	unload    sync.Once
}

// Load wires the add-on into host. It registers the UI actions and starts
// the launch behaviour in the background.
func Load(host Host, store ConfigStore, opts Options) *Plugin {
	if !opts.KeepLogSink {
		plog.SetHandler(NewHostHandler(host))
	}

	p := &Plugin{
		host:  host,
		store: store,
		engine: engine.New(engine.Options{
			Clock:   opts.Clock,
			Metrics: opts.Metrics,
		}),
	}

	def := AddonDefinition()
	plog.Info("Loading add-on", "name", def.Name, "version", def.Version)

	host.RegisterUIAction(ActionRunBackup, func() { p.Backup() })
	host.RegisterUIAction(ActionCleanup, func() { p.Cleanup() })

	cfg, ok := p.loadConfig()
	if ok && (cfg.BackupOnLaunch || cfg.DeleteOldOnLaunch) {
		report(p, "Launch", p.engine.Launch(cfg, host.SourceDirectory()))
	}
	return p
}

// loadConfig reads the settings fresh. On failure the error is logged and
// ok is false.
func (p *Plugin) loadConfig() (cfg config.Config, ok bool) {
	cfg, err := p.store.Load()
	if err != nil {
		plog.Critical("Could not load settings", "error", err)
		return cfg, false
	}
	if lvl, err := plog.ParseLevel(cfg.LogLevel); err == nil {
		plog.SetLevel(lvl)
	}
	return cfg, true
}

// Backup is the "Run Backup" action.
func (p *Plugin) Backup() *engine.Task[engine.BackupResult] {
	cfg, ok := p.loadConfig()
	if !ok {
		return nil
	}
	t := p.engine.DispatchBackup(cfg, p.host.SourceDirectory())
	report(p, "Backup", t)
	return t
}

// Cleanup is the "Cleanup old backups" action.
func (p *Plugin) Cleanup() *engine.Task[engine.CleanupResult] {
	cfg, ok := p.loadConfig()
	if !ok {
		return nil
	}
	t := p.engine.DispatchCleanup(cfg)
	report(p, "Cleanup", t)
	return t
}

// report logs the outcome of t once it finishes.
func report[T any](p *Plugin, what string, t *engine.Task[T]) {
	p.reporters.Add(1)
	go func() {
		defer p.reporters.Done()
		_, err := t.Wait(context.Background())
		switch {
		case err == nil:
			plog.Info(what+" finished", "task", t.ID())
		case hints.IsHint(err):
			plog.Info(what+" skipped", "task", t.ID(), "reason", err)
		default:
			plog.Critical(what+" failed", "task", t.ID(), "error", err)
		}
	}()
}

// Wait blocks until every action started so far has finished.
func (p *Plugin) Wait() {
	p.engine.Wait()
	p.reporters.Wait()
}

// Unload waits for work in flight and shuts the engine down.
func (p *Plugin) Unload() {
	p.unload.Do(func() {
		p.Wait()
		p.engine.Close()
		plog.Info("Add-on unloaded")
	})
}
