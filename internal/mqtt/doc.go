// Package mqtt publishes calendar changes to an MQTT broker so other
// services can follow a client's events without polling the API.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes a retained "online" birth message to the
// availability topic; a will message flips it to "offline" on an
// unexpected disconnect. Each event mutation is published as a JSON
// [EventMessage] to {prefix}/clients/{clientUUID}/events/{change}.
package mqtt
