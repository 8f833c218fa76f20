// Package sandbox builds the PluginContext handed to a loaded plugin: five
// capability proxies (api_client, event_bus, database, file_system, logger),
// each mediating access against the plugin's declared permissions and
// resource limits, plus a periodic sampler that pauses a plugin exceeding
// its hard limits.
package sandbox
