package server

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/Jazzystic/robust-comm-system/internal/protocol"
	"github.com/Jazzystic/robust-comm-system/internal/registry"
	"github.com/Jazzystic/robust-comm-system/internal/transfer"
)

const (
	fileReceivedFormat = "[File received: %s]. Saved at: %s"
	videoCallNotice    = "[Video call started]"
)

// dispatch routes one decoded record from a registered client. Failures are
// logged and the record is dropped; the connection stays open.
func (h *Hub) dispatch(c *Client, rec protocol.Record) {
	switch r := rec.(type) {
	case protocol.DirectMessage:
		h.handleMessage(c, r)
	case protocol.CreateGroup:
		h.handleCreateGroup(c, r)
	case protocol.FileChunk:
		h.handleFileChunk(c, r)
	case protocol.ProfileImage:
		h.handleProfileImage(c, r)
	case protocol.StartVideoCall:
		h.handleVideoCall(c, r)
	default:
		c.logger.Warn("dropping record with no handler", "type", rec.Kind())
	}
}

// handleMessage delivers to a user if one has the recipient name, otherwise
// fans out to the group of that name, excluding the sender.
func (h *Hub) handleMessage(c *Client, r protocol.DirectMessage) {
	if h.deliver(r.Recipient, protocol.NewMessage(c.name, r.Content)) {
		c.logger.Debug("message delivered", "recipient", r.Recipient)
		return
	}

	record, err := protocol.Encode(protocol.NewGroupMessage(c.name, r.Recipient, r.Content))
	if err != nil {
		c.logger.Error("encoding group message", "error", err)
		return
	}
	n, err := h.groups.Route(r.Recipient, c.name, h.deliverTo(record))
	if errors.Is(err, registry.ErrNotFound) {
		c.logger.Warn("unknown recipient", "recipient", r.Recipient)
		return
	}
	c.logger.Debug("group message delivered", "group", r.Recipient, "delivered", n)
}

func (h *Hub) handleCreateGroup(c *Client, r protocol.CreateGroup) {
	h.dirMu.Lock()
	defer h.dirMu.Unlock()

	group, err := h.groups.Create(r.GroupName, r.Members)
	switch {
	case errors.Is(err, registry.ErrGroupExists):
		c.logger.Warn("group name conflict", "group", r.GroupName)
		c.notify("group_exists", fmt.Errorf("%w: %s", err, r.GroupName))
		return
	case errors.Is(err, registry.ErrNoMembers):
		c.logger.Warn("group has no online members", "group", r.GroupName, "members", r.Members)
		c.notify("no_members", err)
		return
	case err != nil:
		c.logger.Warn("group rejected", "group", r.GroupName, "error", err)
		c.notify("invalid_name", err)
		return
	}

	record, err := protocol.Encode(protocol.NewGroupCreated(group.Name, group.Members))
	if err != nil {
		c.logger.Error("encoding group notice", "error", err)
		return
	}
	n, _ := h.groups.NotifyMembers(group.Name, h.deliverTo(record))
	c.logger.Info("group created", "group", group.Name, "members", group.Members, "notified", n)

	h.broadcastGroupList()
}

func (h *Hub) handleFileChunk(c *Client, r protocol.FileChunk) {
	log := c.logger.With("recipient", r.Recipient, "file", r.FileName, "chunk", r.ChunkNumber, "total", r.TotalChunks)

	data, err := base64.StdEncoding.DecodeString(r.Content)
	if err != nil {
		log.Warn("dropping chunk with invalid base64", "error", err)
		return
	}

	done, err := h.transfers.Ingest(r.Recipient, r.FileName, r.ChunkNumber, r.TotalChunks, data)
	switch {
	case errors.Is(err, transfer.ErrPersist):
		log.Error("persisting assembled file failed", "error", err)
		return
	case err != nil:
		log.Warn("dropping chunk", "error", err)
		return
	case done == nil:
		log.Debug("chunk stored")
		return
	}

	log.Info("file assembled", "path", done.Path, "bytes", done.Size)
	notice := protocol.NewMessage(c.name, fmt.Sprintf(fileReceivedFormat, done.FileName, done.Path))
	if !h.deliver(done.Recipient, notice) {
		log.Warn("recipient offline; file notice dropped")
	}
}

func (h *Hub) handleProfileImage(c *Client, r protocol.ProfileImage) {
	if !isBase64(r.Image) {
		c.logger.Warn("rejecting invalid profile image")
		return
	}

	h.dirMu.Lock()
	defer h.dirMu.Unlock()

	if err := h.sessions.SetProfileImage(c.name, r.Image); err != nil {
		c.logger.Warn("updating profile image", "error", err)
		return
	}
	c.logger.Info("profile image updated")
	h.broadcastUserList()
}

func (h *Hub) handleVideoCall(c *Client, r protocol.StartVideoCall) {
	if !h.deliver(r.Recipient, protocol.NewMessage(c.name, videoCallNotice)) {
		c.logger.Debug("video call recipient offline", "recipient", r.Recipient)
	}
}

// deliver sends rec to the session named name and reports whether it was
// queued.
func (h *Hub) deliver(name string, rec protocol.Record) bool {
	session, err := h.sessions.Lookup(name)
	if err != nil {
		return false
	}
	record, err := protocol.Encode(rec)
	if err != nil {
		h.logger.Error("encoding record", "type", rec.Kind(), "error", err)
		return false
	}
	return session.Endpoint().Send(record)
}

// deliverTo returns a fan-out callback that sends an already encoded record.
func (h *Hub) deliverTo(record []byte) func(member string) bool {
	return func(member string) bool {
		session, err := h.sessions.Lookup(member)
		if err != nil {
			return false
		}
		return session.Endpoint().Send(record)
	}
}
