// Package plugin implements the plugin host: loading compiled WASM plugins
// with wazero, binding the "env" host-call ABI, and dispatching events to
// guest handle() exports.
package plugin
