// Package protocol decodes the measurement frames pushed by VIVOSUN AeroLab
// thermo-hygrometers (advertised as "ThermoBeacon2") over BLE.
//
// A frame is an 11-byte notification received on the status characteristic
// after the single-byte command 0x0D has been written to the command
// characteristic. Temperature and humidity are little-endian signed 16-bit
// integers in 1/16 steps, at offsets that depend on the firmware revision.
// The offsets are therefore grouped into a named, versioned Profile.
//
// The external (wired) probe reports -1 when it is not plugged in. A -1 in
// either of its fields makes DecodeFrame return a nil Snapshot.External.
package protocol
