package view

import (
	"bytes"
	"html/template"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/ports"
	"go.uber.org/zap"
)

var walletTemplate = template.Must(template.New("wallet").Parse(
	`<div id="wallet" data-connected="{{.Connected}}">` +
		`<button id="connectButton"{{if not .ShowConnectButton}} hidden{{end}}>Connect Wallet</button>` +
		`{{if .Connected}}` +
		`<span id="walletAddress" title="{{.Address}}">{{.ShortAddress}}</span>` +
		`<span id="walletBalance">{{.BalanceLabel}} ETH</span>` +
		`{{end}}` +
		`</div>`))

// HTMLBinder renders the wallet widget into an HTML fragment.
type HTMLBinder struct {
	tmpl *template.Template
	log  *zap.Logger

	mu  sync.RWMutex
	doc []byte
}

var _ ports.Binder = (*HTMLBinder)(nil)

func NewHTMLBinder(log *zap.Logger) *HTMLBinder {
	b := &HTMLBinder{tmpl: walletTemplate, log: logger.OrNop(log)}
	b.Render(core.ProjectWallet(core.WalletDisconnected, common.Address{}, nil))
	return b
}

// Render replaces the document. A failed render keeps the previous one.
func (b *HTMLBinder) Render(view core.WalletView) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, view); err != nil {
		b.log.Error("failed to render wallet widget", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc = buf.Bytes()
}

// Document returns the last rendered fragment.
func (b *HTMLBinder) Document() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.doc)
}
