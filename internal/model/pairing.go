package model

// PairingResult is delivered exactly once per StartSession call: either a
// pairing code the tenant types into their phone, a note that stored
// credentials already got us online, or the error that ended the attempt.
type PairingResult struct {
	Code             string `json:"pairingCode,omitempty"`
	AlreadyConnected bool   `json:"alreadyConnected,omitempty"`
	Err              error  `json:"-"`
}

// GroupInfo is the subset of group metadata exposed to callers.
type GroupInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}
