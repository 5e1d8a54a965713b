package orch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dkeye/gprimview/internal/app"
	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/domain"
	"github.com/dkeye/gprimview/internal/metrics"
	"github.com/dkeye/gprimview/internal/plugins"
)

type Orchestrator struct {
	Registry *app.Registry
	Plugins  *plugins.Resolver
	Store    core.ModelStore
	Metrics  *metrics.Metrics
}

// Negotiate selects the first client-offered subprotocol the server speaks.
func Negotiate(offered []string) (domain.Protocol, error) {
	for _, o := range offered {
		if p := domain.Protocol(o); p.Known() {
			return p, nil
		}
	}
	return "", &core.NegotiationError{Offered: offered}
}

// Precheck normalizes a viewer path and verifies before the upgrade that it
// can be served: the extension must resolve and the file must exist.
func (o *Orchestrator) Precheck(ctx context.Context, path string) (domain.SessionKey, string, error) {
	key, file := domain.ParseSessionKey(path)
	if _, ok := o.Registry.Get(key); ok {
		return key, file, nil
	}
	if _, err := o.Plugins.Resolve(domain.Ext(file)); err != nil {
		return key, file, err
	}
	if file != "" && (o.Store == nil || !o.Store.Exists(ctx, file)) {
		return key, file, errors.Wrap(core.ErrNotFound, file)
	}
	return key, file, nil
}

// Refused records a connection turned away by class.
func (o *Orchestrator) Refused(err error) {
	o.Metrics.Refused.WithLabelValues(core.Class(err)).Inc()
}

// NewDispatcher returns the lifecycle driver for one connection.
func (o *Orchestrator) NewDispatcher() *Dispatcher {
	return &Dispatcher{o: o}
}
