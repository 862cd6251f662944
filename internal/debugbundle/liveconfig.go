package debugbundle

import (
	"sync/atomic"

	"github.com/ocx/backend/internal/config"
)

// LiveConfig is the observable, live-bound value spec.md §4.E/§9
// describes for collector_binary_path and debug_bundle_storage_dir: a
// config.DebugBundleConfig snapshot behind an atomic pointer, so a
// reload (e.g. SIGHUP re-reading the YAML file) can swap it in without
// the lifecycle controller observing a half-updated value.
type LiveConfig struct {
	ptr atomic.Pointer[config.DebugBundleConfig]
}

// NewLiveConfig wraps an initial value.
func NewLiveConfig(initial config.DebugBundleConfig) *LiveConfig {
	lc := &LiveConfig{}
	lc.ptr.Store(&initial)
	return lc
}

// Snapshot returns the current value. The lifecycle controller calls
// this exactly once per Initiate (spec.md §4.E step 5) to protect
// against mid-operation config drift.
func (lc *LiveConfig) Snapshot() config.DebugBundleConfig {
	return *lc.ptr.Load()
}

// Set atomically replaces the live value, e.g. from a config-reload
// callback.
func (lc *LiveConfig) Set(cfg config.DebugBundleConfig) {
	lc.ptr.Store(&cfg)
}
