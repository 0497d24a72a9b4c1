package paths

// Topic segments of the device OTA protocol. Every topic is built as
// {root}/{segment}/{deviceID}; changing a segment breaks deployed fleets.

// Downstream: management plane -> device
const (
	// OTARequest carries upgrade requests for an image already on the device.
	// Payload: { "requestID": "...", "name": "...", "path": "...", "type": "rcdl" }
	// Pattern: {root}/ota/request/{deviceID}
	OTARequest = "ota/request"
)

// Upstream: device -> management plane
const (
	// OTAAck answers an OTARequest with the synchronous dispatch result.
	// Payload: { "requestID": "...", "id": "...", "error": "NoError" }
	// Pattern: {root}/ota/ack/{deviceID}
	OTAAck = "ota/ack"

	// OTAProgress carries every status delivered for an accepted upgrade.
	// Pattern: {root}/ota/progress/{deviceID}
	OTAProgress = "ota/progress"

	// Online reports the device upgrade service as up or down. The broker
	// publishes the down message as the connection's will.
	// Payload: { "online": true/false, "timestamp": ... }
	// Pattern: {root}/online/{deviceID}
	Online = "online"
)
