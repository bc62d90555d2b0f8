package postgres

import "github.com/tinoosan/bookkeeper/internal/storage"

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*Tx)(nil)
)
