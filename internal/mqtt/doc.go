// Package mqtt is a thin wrapper over paho.mqtt.golang used to publish Home Assistant
// discovery and state messages.
//
// The client announces itself on "<base>/status": "online" after each (re)connect,
// "offline" on Close, and the broker publishes "offline" as the last will when the
// connection drops. Subscriptions are tracked and restored after a reconnect.
package mqtt
