// Package events implements the Event Listener (C8) and Event Publisher
// (C9): SQS-sourced revocation triggers in, SNS-routed revocation
// notifications out.
package events

// DeleteEvent is the payload carried by the delete-placement and
// delete-programme-membership queues (§6).
type DeleteEvent struct {
	TisID string `json:"tisId"`
}

// UpdateEvent is the payload carried by the update-placement and
// update-programme-membership queues (§6). Data holds the salient fields
// named in §6 for the credential type the queue belongs to.
type UpdateEvent struct {
	TisID string            `json:"tisId"`
	Data  map[string]string `json:"data"`
}
