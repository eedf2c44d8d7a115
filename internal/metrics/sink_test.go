package metrics

import (
	"github.com/djlord-it/easy-trigger/internal/api"
	"github.com/djlord-it/easy-trigger/internal/dispatcher"
	"github.com/djlord-it/easy-trigger/internal/reconciler"
	"github.com/djlord-it/easy-trigger/internal/scheduler"
	"github.com/djlord-it/easy-trigger/internal/transport/channel"
)

// Sink must remain a superset of every component's consumer interface so a
// single sink can back the whole process.
var (
	_ scheduler.MetricsSink  = (Sink)(nil)
	_ dispatcher.MetricsSink = (Sink)(nil)
	_ channel.MetricsSink    = (Sink)(nil)
	_ reconciler.MetricsSink = (Sink)(nil)
	_ api.MetricsSink        = (Sink)(nil)
)
