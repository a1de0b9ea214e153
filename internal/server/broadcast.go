package server

import (
	"github.com/Jazzystic/robust-comm-system/internal/protocol"
	"github.com/Jazzystic/robust-comm-system/internal/registry"
)

// BroadcastUserList sends the current user directory to every session.
func (h *Hub) BroadcastUserList() {
	h.dirMu.Lock()
	defer h.dirMu.Unlock()
	h.broadcastUserList()
}

// BroadcastGroupList sends the current group names to every session.
func (h *Hub) BroadcastGroupList() {
	h.dirMu.Lock()
	defer h.dirMu.Unlock()
	h.broadcastGroupList()
}

// broadcastUserList requires h.dirMu.
func (h *Hub) broadcastUserList() {
	entries := h.sessions.Snapshot()
	users := make([]protocol.UserEntry, 0, len(entries))
	for _, e := range entries {
		users = append(users, protocol.UserEntry{Username: e.Name, ProfileImage: e.ProfileImage})
	}
	h.fanOut(protocol.NewUserList(users), entries)
}

// broadcastGroupList requires h.dirMu.
func (h *Hub) broadcastGroupList() {
	h.fanOut(protocol.NewGroupList(h.groups.Names()), h.sessions.Snapshot())
}

func (h *Hub) sendGroupList(c *Client) {
	record, err := protocol.Encode(protocol.NewGroupList(h.groups.Names()))
	if err != nil {
		h.logger.Error("encoding group list", "error", err)
		return
	}
	c.Send(record)
}

func (h *Hub) fanOut(rec protocol.Record, entries []registry.Entry) {
	record, err := protocol.Encode(rec)
	if err != nil {
		h.logger.Error("encoding broadcast", "type", rec.Kind(), "error", err)
		return
	}

	failed := 0
	for _, e := range entries {
		if !e.Endpoint.Send(record) {
			failed++
		}
	}
	h.logger.Debug("broadcast", "type", rec.Kind(), "recipients", len(entries), "failed", failed)
}
