package realtime

// Outbound collaboration actions. The server identifies the sender from the
// connection, so payloads carry only the target identifiers.

type sendInvitePayload struct {
	Action      string `json:"action"`
	DraftbeatID int64  `json:"draftbeat_id"`
	RecipientID int64  `json:"recipient_id"`
}

type inviteReplyPayload struct {
	Action   string `json:"action"`
	InviteID int64  `json:"invite_id"`
}

func (c *Channel) SendInvite(draftID, recipientID int64) {
	c.Send(sendInvitePayload{Action: "send_invite", DraftbeatID: draftID, RecipientID: recipientID})
}

func (c *Channel) AcceptInvite(inviteID int64) {
	c.Send(inviteReplyPayload{Action: "accept_invite", InviteID: inviteID})
}

func (c *Channel) RefuseInvite(inviteID int64) {
	c.Send(inviteReplyPayload{Action: "refuse_invite", InviteID: inviteID})
}
