//go:build js && wasm && !taskpool_manual

package core

const defaultBackend = BackendCooperative
