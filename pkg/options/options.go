// Package options holds the process-wide parse and print settings.
// Settings affect rendering and the depth of lazy codestream parsing only;
// trees that have already been built are never changed by them.
package options

import "sync"

// Options is a snapshot of the current settings
type Options struct {
	// ParseFullCodestream parses every tile part instead of stopping at the
	// first SOT when the codestream is rendered or inspected.
	ParseFullCodestream bool `json:"parse_full_codestream"`
	// PrintXML includes XML box bodies when rendering.
	PrintXML bool `json:"print_xml"`
	// PrintCodestream includes the codestream marker dump under jp2c.
	PrintCodestream bool `json:"print_codestream"`
	// PrintShort renders box headers only.
	PrintShort bool `json:"print_short"`
	// NumThreads is passed through to codecs unchanged.
	NumThreads int `json:"num_threads"`
}

// Default returns the settings a fresh process starts with
func Default() Options {
	return Options{
		PrintXML:        true,
		PrintCodestream: true,
		NumThreads:      1,
	}
}

var (
	mu      sync.RWMutex
	current = Default()
)

// Get returns a copy of the current settings
func Get() Options {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set replaces the current settings
func Set(o Options) {
	mu.Lock()
	defer mu.Unlock()
	if o.NumThreads < 1 {
		o.NumThreads = 1
	}
	current = o
}

// Update applies fn to the current settings under the lock
func Update(fn func(*Options)) {
	mu.Lock()
	defer mu.Unlock()
	fn(&current)
	if current.NumThreads < 1 {
		current.NumThreads = 1
	}
}

// Reset restores Default
func Reset() {
	Set(Default())
}
