package crypto

import "runtime"

// Zeroize overwrites b with zeros. DEKs, KEKs and shared secrets are
// call-scoped; callers wipe them on every exit path, including errors.
// Go's collector gives no timing guarantee, so the wipe is explicit.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
