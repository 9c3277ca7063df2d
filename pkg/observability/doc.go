/*
Package observability turns agent lifecycle hooks into Prometheus metrics and structured logs.

Hooks compose with Chain, so a world can feed metrics, logs and a custom tracer at once:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	world := statestack.New(reg, statestack.WithLifecycleHooks(
		observability.Chain(metrics.Hooks(), observability.LogHooks(logger)),
	))
*/
package observability
