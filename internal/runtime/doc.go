/*
Package runtime implements the mediator behind dispatchflow.

# Package Structure

## Requests and capabilities (request.go, resolver.go, registry.go)

Marker types (Returns, Command, Event), the handler and behavior contracts,
and the Token-keyed Resolver. Registry is the default Resolver; typed
adapters erase the request type so the dispatch path only deals with the
response type.

## Dispatch (mediator.go, cache.go, pipeline.go, recovery.go)

Send resolves the handler, builds and caches the ordered behavior chain per
request type and folds it around the handler. Failures are offered to
exception handlers before they reach the caller.

## Fan-out (publisher.go)

Publish runs every notification handler through an errgroup, bounded by
Config.NotificationConcurrency, and aggregates failures.

## Behaviors and hooks (behaviors.go, hooks.go)

Correlation IDs, tracing, logging, hooks, metrics, panic recovery, retry,
circuit breaking, validation and timeouts.

## Observability (metrics.go, stats.go, stats_http.go)

Prometheus collectors, in-process dispatch statistics with latency
percentiles and throughput, and an HTTP handler serving them.

# Sub-packages

  - bridge/: Watermill forwarders and message handlers
  - config/: Mediator configuration with validation and YAML loading
  - errors/: Sentinel errors and error types
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Context and message metadata
*/
package runtime
