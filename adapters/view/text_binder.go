package view

import (
	"fmt"
	"io"
	"sync"

	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

// TextBinder prints one line per rendered view, skipping repeats.
type TextBinder struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

var _ ports.Binder = (*TextBinder)(nil)

func NewTextBinder(w io.Writer) *TextBinder {
	return &TextBinder{w: w}
}

func (b *TextBinder) Render(view core.WalletView) {
	line := FormatText(view)

	b.mu.Lock()
	defer b.mu.Unlock()
	if line == b.last {
		return
	}
	b.last = line
	fmt.Fprintln(b.w, line)
}

// FormatText is the single-line form of a wallet view.
func FormatText(view core.WalletView) string {
	if !view.Connected {
		return "wallet: disconnected"
	}
	return fmt.Sprintf("wallet: %s (%s) balance %s ETH", view.ShortAddress, view.Address, view.BalanceLabel)
}
