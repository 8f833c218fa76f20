// Package plugin implements discovery, dependency resolution, and the
// six-stage loading pipeline that turns manifests on disk into Active
// plugins, plus unload and hot-reload.
package plugin
