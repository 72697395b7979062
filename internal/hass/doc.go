// Package hass exposes running integrations to Home Assistant through MQTT discovery.
//
// Topics, with the default prefixes:
//
//	homeassistant/sensor/<node_id>/<probe>_<metric>/config   retained discovery config
//	vivotherm/<entry_id>/state                               retained snapshot JSON
//	vivotherm/<entry_id>/<probe>/availability                online | offline
//	vivotherm/status                                         bridge availability (LWT)
//
// When Home Assistant announces "online" on homeassistant/status, every discovery
// config and the last state are published again.
package hass
