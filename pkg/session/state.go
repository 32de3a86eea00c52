package session

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MaxPINAttempts is the number of incorrect PINs tolerated per session.
const MaxPINAttempts = 3

// State is the per-session memory that the input string alone cannot carry.
type State struct {
	Authenticated bool `json:"authenticated"`

	// PINAttempts counts failures across the whole session and never resets.
	PINAttempts int `json:"pin_attempts"`

	// GateBase is the token index of the gated selection the current PIN
	// entries belong to, and GateAttempts the failures made there.
	GateBase     int `json:"gate_base"`
	GateAttempts int `json:"gate_attempts"`

	// AuthIndex is the token index the authenticated sub-flow counts from.
	AuthIndex int `json:"auth_index"`

	// Root is the token index where the current menu path starts.
	Root int `json:"root"`

	PendingOTP      string           `json:"pending_otp,omitempty"`
	PendingTransfer *PendingTransfer `json:"pending_transfer,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingTransfer is a transfer draft awaiting OTP confirmation.
type PendingTransfer struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// LockedOut reports whether the PIN attempt budget is spent.
func (s *State) LockedOut() bool {
	return s.PINAttempts >= MaxPINAttempts
}

// AttemptsLeft returns the remaining PIN attempts.
func (s *State) AttemptsLeft() int {
	if n := MaxPINAttempts - s.PINAttempts; n > 0 {
		return n
	}
	return 0
}

// ClearPending drops any transfer draft and returns it.
func (s *State) ClearPending() (otp string, draft *PendingTransfer) {
	otp, draft = s.PendingOTP, s.PendingTransfer
	s.PendingOTP = ""
	s.PendingTransfer = nil
	return otp, draft
}

// Retained reports whether an encoded state must survive capacity eviction:
// one with failed PIN attempts or an unconfirmed transfer. It matches the
// memory layer's Retain hook.
func Retained(key string, value []byte) bool {
	var st State
	if err := json.Unmarshal(value, &st); err != nil {
		return false
	}
	return st.PINAttempts > 0 || st.PendingTransfer != nil
}
