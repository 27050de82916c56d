//go:build wasm

package internal

// wasm runs a single thread, every caller shares the same identity
func goroutineID() int64 {
	return 1
}
