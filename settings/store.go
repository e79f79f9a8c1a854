package settings

import "context"

// Reader loads the settings singleton.
type Reader interface {
	GetSettings(ctx context.Context) (*Settings, error)
}

// Store reads and overwrites the settings singleton.
type Store interface {
	Reader
	PutSettings(ctx context.Context, s *Settings) error
}
