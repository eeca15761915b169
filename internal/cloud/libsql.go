//go:build libsql

package cloud

import (
	_ "github.com/tursodatabase/go-libsql"
)

func init() {
	libsqlAvailable = true
}
