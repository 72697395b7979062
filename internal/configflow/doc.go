// Package configflow implements the pairing state machine for discovered thermo-hygrometers.
//
//	Start ──HandleBluetooth──▶ Confirm ──HandleConfirm──▶ Created
//	  │                          │
//	  └──────────────────────────┴──▶ Aborted (already_configured | not_supported)
//
// A device is identified by "<discovery name>-<address>"; a second flow for the same
// device aborts with ErrAlreadyConfigured.
package configflow
