package tip

import "context"

// Lister reads the tips partition of one profile, newest first.
type Lister interface {
	ListTips(ctx context.Context, profile string, opts ListOpts) ([]*Tip, error)
}

// Store is the transactional tip surface.
type Store interface {
	CreateTip(ctx context.Context, t *Tip) error
}
