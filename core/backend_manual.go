//go:build taskpool_manual

package core

const defaultBackend = BackendManual
