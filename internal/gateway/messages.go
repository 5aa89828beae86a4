package gateway

// inboundEnvelope is the decoded client message. Every inbound frame carries
// at least an action; the remaining fields are action-specific.
type inboundEnvelope struct {
	Action   string `json:"action"`
	Autoplay *bool  `json:"autoplay,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
}

// autoplayConfirmation echoes a preference change back to the client.
type autoplayConfirmation struct {
	Action   string `json:"action"`
	Autoplay bool   `json:"autoplay"`
}

// latestBatch is the backlog sent once right after the upgrade completes.
type latestBatch struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}
