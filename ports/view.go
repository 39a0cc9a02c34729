package ports

import "github.com/layer-3/agora/core"

// Binder projects wallet state onto a UI. It must be idempotent and must not touch
// the session store.
type Binder interface {
	Render(view core.WalletView)
}
