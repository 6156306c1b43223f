// Package dirs resolves the runtime directory termwrightd places its
// control sockets in, following XDG conventions with fallbacks for
// platforms where XDG isn't fully supported.
package dirs

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
)

// RuntimeDir returns the directory termwrightd should place its
// control socket in. Priority: $TERMWRIGHT_RUNTIME_DIR > best
// available XDG-style runtime dir > $TMPDIR/termwright-$USER.
func RuntimeDir() string {
	if v := os.Getenv("TERMWRIGHT_RUNTIME_DIR"); v != "" {
		return v
	}

	if base := findRuntimeBase(); base != "" {
		return filepath.Join(base, "termwright")
	}

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return filepath.Join(os.TempDir(), "termwright-"+username)
}

// SocketPath returns the socket path for a daemon instance identified
// by pid, inside RuntimeDir.
func SocketPath(pid int) string {
	return filepath.Join(RuntimeDir(), fmt.Sprintf("termwrightd-%d.sock", pid))
}

// findRuntimeBase finds the best available runtime directory base.
// On Linux this is typically /run/user/$UID, on macOS/BSD we check
// candidates.
func findRuntimeBase() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}

	currentUser, err := user.Current()
	if err != nil {
		return ""
	}

	candidates := []string{
		filepath.Join("/run/user", currentUser.Uid),
		filepath.Join("/var/run/user", currentUser.Uid),
	}

	if runtime.GOOS == "freebsd" {
		candidates = append([]string{
			filepath.Join("/var/run/xdg", currentUser.Username),
		}, candidates...)
	}

	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}

	return ""
}
