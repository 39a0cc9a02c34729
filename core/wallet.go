package core

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// WalletSession is the persisted record of a wallet connection.
// It is written only through a ports.SessionStore.
type WalletSession struct {
	Connected  bool
	Address    string
	ObservedAt time.Time
}

// walletSessionJSON is the persisted wire format.
type walletSessionJSON struct {
	IsConnected bool   `json:"isConnected"`
	Address     string `json:"address"`
	Timestamp   int64  `json:"timestamp"`
}

// MarshalJSON encodes the session as {isConnected, address, timestamp(ms)}.
func (s WalletSession) MarshalJSON() ([]byte, error) {
	var ts int64
	if !s.ObservedAt.IsZero() {
		ts = s.ObservedAt.UnixMilli()
	}
	return json.Marshal(walletSessionJSON{
		IsConnected: s.Connected,
		Address:     s.Address,
		Timestamp:   ts,
	})
}

// UnmarshalJSON decodes the {isConnected, address, timestamp(ms)} record.
func (s *WalletSession) UnmarshalJSON(data []byte) error {
	var raw walletSessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Connected = raw.IsConnected
	s.Address = raw.Address
	s.ObservedAt = time.Time{}
	if raw.Timestamp != 0 {
		s.ObservedAt = time.UnixMilli(raw.Timestamp)
	}
	return nil
}

// WalletState is the controller state.
type WalletState int

const (
	WalletDisconnected WalletState = iota
	WalletConnecting
	WalletConnected
)

func (s WalletState) String() string {
	switch s {
	case WalletConnecting:
		return "connecting"
	case WalletConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// WalletView is what the UI binder renders.
type WalletView struct {
	Connected         bool
	ShowConnectButton bool
	Address           string // checksummed, empty when disconnected
	ShortAddress      string
	Balance           *big.Int // nil when unknown
	BalanceLabel      string
}

// ProjectWallet derives the view for a controller state. It has no side effects.
func ProjectWallet(state WalletState, addr common.Address, balance *big.Int) WalletView {
	if state != WalletConnected {
		return WalletView{ShowConnectButton: true}
	}
	var bal *big.Int
	if balance != nil {
		bal = new(big.Int).Set(balance)
	}
	return WalletView{
		Connected:    true,
		Address:      addr.Hex(),
		ShortAddress: ShortAddress(addr),
		Balance:      bal,
		BalanceLabel: BalanceLabel(bal),
	}
}

// WalletEventType names a controller transition.
type WalletEventType string

const (
	WalletEventConnected     WalletEventType = "wallet.connected"
	WalletEventRestored      WalletEventType = "wallet.restored"
	WalletEventSwitched      WalletEventType = "wallet.switched"
	WalletEventDisconnected  WalletEventType = "wallet.disconnected"
	WalletEventChainChanged  WalletEventType = "wallet.chain_changed"
	WalletEventConnectFailed WalletEventType = "wallet.connect_failed"
)

// WalletEvent is published on every controller transition.
type WalletEvent struct {
	Type       WalletEventType `json:"type"`
	Address    string          `json:"address,omitempty"`
	ChainID    string          `json:"chain_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
