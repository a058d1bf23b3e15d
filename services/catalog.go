// Package services assembles the emulated services into a registry.
package services

import (
	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/service"
	"github.com/wippyai/hle/services/am"
	"github.com/wippyai/hle/services/capsrv"
	"github.com/wippyai/hle/services/hosbinder"
)

// Internal interface names reachable only through other sessions. The
// registry can still instantiate them for host tooling.
const (
	SelfController   = "ISelfController"
	ApplicationProxy = "IApplicationProxy"
)

// Options selects and sizes the catalog.
type Options struct {
	// Enabled lists the ports to register. Empty enables every port.
	Enabled   []string
	MaxLayers int
}

// Catalog returns the registrations for every known service.
func Catalog(opts Options) []service.Registration {
	return []service.Registration{
		{Name: am.Port, Port: true, New: func(service.Env) (service.Service, error) { return am.NewProxyService(), nil }},
		{Name: ApplicationProxy, New: func(service.Env) (service.Service, error) { return &am.ApplicationProxy{}, nil }},
		{Name: SelfController, New: func(service.Env) (service.Service, error) { return am.NewSelfController(), nil }},
		{Name: capsrv.Name, Port: true, New: func(service.Env) (service.Service, error) { return capsrv.New(), nil }},
		{Name: hosbinder.Name, Port: true, Shared: true, New: hosbinder.Factory(opts.MaxLayers)},
	}
}

// Install registers the enabled part of the catalog in reg.
func Install(reg *service.Registry, opts Options) error {
	enabled := make(map[string]bool, len(opts.Enabled))
	for _, name := range opts.Enabled {
		enabled[name] = true
	}
	known := make(map[string]bool)
	for _, r := range Catalog(opts) {
		known[r.Name] = true
		if r.Port && len(enabled) > 0 && !enabled[r.Name] {
			continue
		}
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	for _, name := range opts.Enabled {
		if !known[name] {
			return errors.NotFound(errors.PhaseConfig, "service", name)
		}
	}
	return nil
}
