// Package protocol defines the typed records exchanged between the relay and
// its clients after the handshake, and converts them to and from their JSON
// wire form.
package protocol

// Kind is the value of a record's "type" field.
type Kind string

// Client to server records.
const (
	KindMessage        Kind = "message"
	KindCreateGroup    Kind = "create_group"
	KindFileChunk      Kind = "file_chunk"
	KindProfileImage   Kind = "profile_image"
	KindStartVideoCall Kind = "start_video_call"
)

// Server to client records. KindMessage is used in both directions.
const (
	KindGroupMessage Kind = "group_message"
	KindGroupCreated Kind = "group_created"
	KindUserList     Kind = "user_list"
	KindGroupList    Kind = "group_list"
	KindError        Kind = "error"
)

// Record is implemented by every record type in this package and nothing else.
type Record interface {
	Kind() Kind
	record()
}

// Inbound records, produced by Decode.

// DirectMessage addresses a user or a group by name.
type DirectMessage struct {
	Type      Kind   `json:"type"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

// CreateGroup asks the relay to create a named group.
type CreateGroup struct {
	Type      Kind     `json:"type"`
	GroupName string   `json:"group_name"`
	Members   []string `json:"members"`
}

// FileChunk carries one base64-encoded slice of a file transfer.
type FileChunk struct {
	Type        Kind   `json:"type"`
	Recipient   string `json:"recipient"`
	FileName    string `json:"file_name"`
	ChunkNumber int    `json:"chunk_number"`
	TotalChunks int    `json:"total_chunks"`
	Content     string `json:"content"`
}

// ProfileImage replaces the sender's base64-encoded profile image.
type ProfileImage struct {
	Type  Kind   `json:"type"`
	Image string `json:"image"`
}

// StartVideoCall notifies the recipient that the sender opened a call.
type StartVideoCall struct {
	Type      Kind   `json:"type"`
	Recipient string `json:"recipient"`
}

// Outbound records, built with the New* constructors.

// Message is a direct message as delivered to its recipient.
type Message struct {
	Type    Kind   `json:"type"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// GroupMessage is a message fanned out to the members of a group.
type GroupMessage struct {
	Type    Kind   `json:"type"`
	Sender  string `json:"sender"`
	Group   string `json:"group"`
	Content string `json:"content"`
}

// GroupCreated tells a member that it was added to a new group.
type GroupCreated struct {
	Type      Kind     `json:"type"`
	GroupName string   `json:"group_name"`
	Members   []string `json:"members"`
}

// UserEntry is one line of a user list snapshot.
type UserEntry struct {
	Username     string `json:"username"`
	ProfileImage string `json:"profile_image"`
}

// UserList is the directory of online users, in registration order.
type UserList struct {
	Type  Kind        `json:"type"`
	Users []UserEntry `json:"users"`
}

// GroupList is the directory of active group names, in creation order.
type GroupList struct {
	Type   Kind     `json:"type"`
	Groups []string `json:"groups"`
}

// Error reports a rejected operation to the client that initiated it.
type Error struct {
	Type    Kind   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (DirectMessage) Kind() Kind  { return KindMessage }
func (CreateGroup) Kind() Kind    { return KindCreateGroup }
func (FileChunk) Kind() Kind      { return KindFileChunk }
func (ProfileImage) Kind() Kind   { return KindProfileImage }
func (StartVideoCall) Kind() Kind { return KindStartVideoCall }
func (Message) Kind() Kind        { return KindMessage }
func (GroupMessage) Kind() Kind   { return KindGroupMessage }
func (GroupCreated) Kind() Kind   { return KindGroupCreated }
func (UserList) Kind() Kind       { return KindUserList }
func (GroupList) Kind() Kind      { return KindGroupList }
func (Error) Kind() Kind          { return KindError }

func (DirectMessage) record()  {}
func (CreateGroup) record()    {}
func (FileChunk) record()      {}
func (ProfileImage) record()   {}
func (StartVideoCall) record() {}
func (Message) record()        {}
func (GroupMessage) record()   {}
func (GroupCreated) record()   {}
func (UserList) record()       {}
func (GroupList) record()      {}
func (Error) record()          {}

// NewMessage builds a direct message from sender.
func NewMessage(sender, content string) Message {
	return Message{Type: KindMessage, Sender: sender, Content: content}
}

// NewGroupMessage builds a group fan-out message.
func NewGroupMessage(sender, group, content string) GroupMessage {
	return GroupMessage{Type: KindGroupMessage, Sender: sender, Group: group, Content: content}
}

// NewGroupCreated builds a group creation notice.
func NewGroupCreated(group string, members []string) GroupCreated {
	return GroupCreated{Type: KindGroupCreated, GroupName: group, Members: nonNil(members)}
}

// NewUserList builds a user directory snapshot.
func NewUserList(users []UserEntry) UserList {
	if users == nil {
		users = []UserEntry{}
	}
	return UserList{Type: KindUserList, Users: users}
}

// NewGroupList builds a group directory snapshot.
func NewGroupList(groups []string) GroupList {
	return GroupList{Type: KindGroupList, Groups: nonNil(groups)}
}

// NewError builds an error notice.
func NewError(code, message string) Error {
	return Error{Type: KindError, Code: code, Message: message}
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
