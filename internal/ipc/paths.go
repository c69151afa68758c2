package ipc

import (
	"os"
	"path/filepath"
)

// SocketPath returns the well-known Unix domain socket path for a given
// ipc_name (§6 "ipc_name"), so the daemon and the companion CLI derive the
// same path from the same configuration value without sharing code beyond
// this package.
func SocketPath(ipcName string) string {
	return filepath.Join(os.TempDir(), ipcName+".sock")
}

// TokenPath returns where the daemon writes its generated shared secret
// (§4.9 "the controller generates a random shared secret") for intercomctl
// to read out of band. The file is written with owner-only permissions.
func TokenPath(ipcName string) string {
	return filepath.Join(os.TempDir(), ipcName+".token")
}
