package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/tearschat/chatclient/internal/api"
	"github.com/tearschat/chatclient/internal/eventbus"
	"github.com/tearschat/chatclient/internal/model"
)

// fakeAPI scripts the REST surface. GetChat responses are consumed in order,
// with the last one repeating.
type fakeAPI struct {
	mu sync.Mutex

	chats    []*api.ChatResponse
	chatErr  error
	chatGets int

	joinResp  *api.MembershipResponse
	joinErr   error
	joinCalls int

	page    *api.MessagesPage
	pageErr error

	addErr error
	added  []string
}

func (f *fakeAPI) GetChat(_ context.Context, _ int64) (*api.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatGets++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if len(f.chats) > 1 {
		resp := f.chats[0]
		f.chats = f.chats[1:]
		return resp, nil
	}
	return f.chats[0], nil
}

func (f *fakeAPI) JoinChat(_ context.Context, _ int64) (*api.MembershipResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls++
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return f.joinResp, nil
}

func (f *fakeAPI) GetMessages(_ context.Context, _ int64, _, _ int) (*api.MessagesPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	if f.page == nil {
		return &api.MessagesPage{}, nil
	}
	return f.page, nil
}

func (f *fakeAPI) AddMember(_ context.Context, _ int64, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, username)
	return nil
}

func (f *fakeAPI) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinCalls
}

// fakeConn records stream operations.
type fakeConn struct {
	mu sync.Mutex

	connectErr   error
	connected    bool
	roomID       int64
	token        string
	connectCalls int
	disconnects  int
	sent         []string
}

func (c *fakeConn) Connect(_ context.Context, roomID int64, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	c.roomID = roomID
	c.token = token
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.connected = false
}

func (c *fakeConn) Send(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errors.New("not connected")
	}
	c.sent = append(c.sent, content)
	return nil
}

func (c *fakeConn) State() model.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return model.StateConnected
	}
	return model.StateDisconnected
}

func memberChat() *api.ChatResponse {
	return &api.ChatResponse{ID: 42, Name: "general", Role: "member", MemberCount: 3}
}

func historyPage() *api.MessagesPage {
	// Server order is newest-first.
	return &api.MessagesPage{
		Items: []api.APIMessage{
			{ID: 8, Content: "second", UserID: 3, Username: "bob", CreatedAt: "2024-01-01T00:00:01Z"},
			{ID: 7, Content: "first", UserID: 2, Username: "alice", CreatedAt: "2024-01-01T00:00:00Z"},
		},
		Meta: api.PageMeta{Page: 1, PerPage: 100, TotalItems: 2, TotalPages: 1},
	}
}

func newTestSession(chatAPI *fakeAPI, conn *fakeConn) (*Session, *eventbus.Bus) {
	bus := eventbus.New()
	sess := New(chatAPI, conn, bus, "t1", Config{}, nil)
	return sess, bus
}

func TestSession_Load(t *testing.T) {
	chatAPI := &fakeAPI{chats: []*api.ChatResponse{memberChat()}, page: historyPage()}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if sess.Status() != StatusResolved {
		t.Errorf("Status() = %v, want resolved", sess.Status())
	}

	room := sess.Room()
	if room.ID != 42 || room.Role != model.RoleMember || room.MemberCount != 3 {
		t.Errorf("Room() = %+v, want id 42, role member, 3 members", room)
	}

	msgs := sess.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(msgs))
	}
	// History arrives newest-first and must be reversed.
	if msgs[0].ID != 7 || msgs[1].ID != 8 {
		t.Errorf("message order = [%d %d], want [7 8]", msgs[0].ID, msgs[1].ID)
	}

	if conn.connectCalls != 1 || conn.roomID != 42 || conn.token != "t1" {
		t.Errorf("stream connect = %d calls room %d token %q, want 1 call room 42 token t1",
			conn.connectCalls, conn.roomID, conn.token)
	}
	if chatAPI.joinCount() != 0 {
		t.Errorf("join called %d times for a member, want 0", chatAPI.joinCount())
	}
}

func TestSession_Load_AutoJoinPublicRoom(t *testing.T) {
	chatAPI := &fakeAPI{
		chats: []*api.ChatResponse{
			{ID: 42, Name: "general", Role: "", MemberCount: 3},
			{ID: 42, Name: "general", Role: "member", MemberCount: 4},
		},
		joinResp: &api.MembershipResponse{ChatID: 42, Role: "member"},
		page:     historyPage(),
	}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if chatAPI.joinCount() != 1 {
		t.Errorf("join called %d times, want 1", chatAPI.joinCount())
	}

	room := sess.Room()
	if room.Role != model.RoleMember {
		t.Errorf("Role = %q, want member after auto-join", room.Role)
	}
	if room.MemberCount != 4 {
		t.Errorf("MemberCount = %d, want 4 from the refetch", room.MemberCount)
	}
}

func TestSession_Load_PrivateRoomDenied(t *testing.T) {
	chatAPI := &fakeAPI{
		chats: []*api.ChatResponse{{ID: 99, Name: "secret", IsPrivate: true, Role: ""}},
		page:  historyPage(),
	}
	conn := &fakeConn{}
	sess, bus := newTestSession(chatAPI, conn)

	err := sess.Load(context.Background(), 99)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Load() error = %v, want ErrPermissionDenied", err)
	}

	if sess.Status() != StatusFailed {
		t.Errorf("Status() = %v, want failed", sess.Status())
	}
	if chatAPI.joinCount() != 0 {
		t.Errorf("join called %d times for a private room, want 0", chatAPI.joinCount())
	}
	if conn.connectCalls != 0 {
		t.Errorf("stream connected %d times after fatal load, want 0", conn.connectCalls)
	}
	if bus.MessageHandlerCount() != 0 || bus.ConnectionHandlerCount() != 0 {
		t.Error("failed load left handlers registered")
	}
}

func TestSession_Load_JoinFailed(t *testing.T) {
	chatAPI := &fakeAPI{
		chats:   []*api.ChatResponse{{ID: 7, Name: "general", Role: ""}},
		joinErr: &api.APIError{StatusCode: http.StatusConflict, Detail: "Chat is full"},
	}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)

	err := sess.Load(context.Background(), 7)
	if !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("Load() error = %v, want ErrJoinFailed", err)
	}
	// The server's detail text must survive for display.
	if !strings.Contains(err.Error(), "Chat is full") {
		t.Errorf("error %q does not carry the server detail", err)
	}
	if conn.connectCalls != 0 {
		t.Errorf("stream connected %d times after failed join, want 0", conn.connectCalls)
	}
}

func TestSession_Load_JoinForbidden(t *testing.T) {
	// A room that reads as public but rejects the join with 403 surfaces as
	// a permission failure, not a generic join failure.
	chatAPI := &fakeAPI{
		chats:   []*api.ChatResponse{{ID: 7, Name: "general", Role: ""}},
		joinErr: &api.APIError{StatusCode: http.StatusForbidden, Detail: "This chat is private"},
	}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)

	err := sess.Load(context.Background(), 7)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Load() error = %v, want ErrPermissionDenied", err)
	}
	if sess.Status() != StatusFailed {
		t.Errorf("Status() = %v, want failed", sess.Status())
	}
	if conn.connectCalls != 0 {
		t.Errorf("stream connected %d times after forbidden join, want 0", conn.connectCalls)
	}
}

func TestSession_Load_RoomNotFound(t *testing.T) {
	chatAPI := &fakeAPI{
		chatErr: &api.APIError{StatusCode: http.StatusNotFound, Detail: "Chat not found"},
	}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)

	err := sess.Load(context.Background(), 1)
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Load() error = %v, want ErrRoomNotFound", err)
	}
	if sess.Status() != StatusFailed {
		t.Errorf("Status() = %v, want failed", sess.Status())
	}
}

func TestSession_Load_HistoryForbiddenFatal(t *testing.T) {
	chatAPI := &fakeAPI{
		chats:   []*api.ChatResponse{memberChat()},
		pageErr: &api.APIError{StatusCode: http.StatusForbidden, Detail: "This chat is private"},
	}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)

	err := sess.Load(context.Background(), 42)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Load() error = %v, want ErrPermissionDenied", err)
	}
	if conn.connectCalls != 0 {
		t.Errorf("stream connected %d times after fatal load, want 0", conn.connectCalls)
	}
}

func TestSession_Load_HistoryFailureDegrades(t *testing.T) {
	chatAPI := &fakeAPI{
		chats:   []*api.ChatResponse{memberChat()},
		pageErr: &api.APIError{StatusCode: http.StatusInternalServerError, Detail: "boom"},
	}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if sess.Status() != StatusResolved {
		t.Errorf("Status() = %v, want resolved despite history failure", sess.Status())
	}
	if got := sess.Messages(); len(got) != 0 {
		t.Errorf("len(Messages()) = %d, want 0", len(got))
	}
	if conn.connectCalls != 1 {
		t.Errorf("stream connected %d times, want 1", conn.connectCalls)
	}
}

func TestSession_Load_DialFailureNotFatal(t *testing.T) {
	chatAPI := &fakeAPI{chats: []*api.ChatResponse{memberChat()}, page: historyPage()}
	conn := &fakeConn{connectErr: errors.New("refused")}
	sess, _ := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if sess.Status() != StatusResolved {
		t.Errorf("Status() = %v, want resolved while the stream retries", sess.Status())
	}
}

func TestSession_LiveFrames(t *testing.T) {
	chatAPI := &fakeAPI{chats: []*api.ChatResponse{memberChat()}, page: historyPage()}
	conn := &fakeConn{}
	sess, bus := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Message 8 is already in history; the echo must be dropped. Message 9
	// is new and must land at the end of the feed.
	bus.PublishMessage(model.Frame{
		Type: model.FrameMessage, MessageID: 8, Content: "second",
		UserID: 3, Username: "bob", Timestamp: "2024-01-01T00:00:01Z",
	})
	bus.PublishMessage(model.Frame{
		Type: model.FrameMessage, MessageID: 9, Content: "third",
		UserID: 2, Username: "alice", Timestamp: "2024-01-01T00:00:02Z",
	})
	bus.PublishMessage(model.Frame{Type: model.FrameUserJoined, Username: "carol"})

	msgs := sess.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len(Messages()) = %d, want 3", len(msgs))
	}
	if msgs[0].ID != 7 || msgs[1].ID != 8 || msgs[2].ID != 9 {
		t.Errorf("message order = [%d %d %d], want [7 8 9]", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
	if msgs[2].AuthorName != "alice" {
		t.Errorf("AuthorName = %q, want alice", msgs[2].AuthorName)
	}
}

func TestSession_DuplicateKeepsEarliestPosition(t *testing.T) {
	chatAPI := &fakeAPI{chats: []*api.ChatResponse{memberChat()}, page: nil}
	conn := &fakeConn{}
	sess, bus := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	frame := func(id int64, content string) model.Frame {
		return model.Frame{Type: model.FrameMessage, MessageID: id, Content: content,
			UserID: 2, Username: "alice", Timestamp: "2024-01-01T00:00:00Z"}
	}
	bus.PublishMessage(frame(1, "one"))
	bus.PublishMessage(frame(2, "two"))
	bus.PublishMessage(frame(1, "one again"))

	msgs := sess.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(msgs))
	}
	if msgs[0].ID != 1 || msgs[0].Content != "one" {
		t.Errorf("first message = %+v, want the original id 1", msgs[0])
	}
}

func TestSession_Send(t *testing.T) {
	chatAPI := &fakeAPI{chats: []*api.ChatResponse{memberChat()}, page: nil}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := sess.Send("hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.sent) != 1 || conn.sent[0] != "hello" {
		t.Errorf("sent = %v, want [hello]", conn.sent)
	}
}

func TestSession_AddMember(t *testing.T) {
	chatAPI := &fakeAPI{
		chats: []*api.ChatResponse{{ID: 42, Name: "general", Role: "owner", MemberCount: 3}},
	}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := sess.AddMember(context.Background(), "carol"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	if sess.Room().MemberCount != 4 {
		t.Errorf("MemberCount = %d, want 4 after adding a member", sess.Room().MemberCount)
	}
	chatAPI.mu.Lock()
	defer chatAPI.mu.Unlock()
	if len(chatAPI.added) != 1 || chatAPI.added[0] != "carol" {
		t.Errorf("added = %v, want [carol]", chatAPI.added)
	}
}

func TestSession_AddMember_NotOwner(t *testing.T) {
	chatAPI := &fakeAPI{chats: []*api.ChatResponse{memberChat()}}
	conn := &fakeConn{}
	sess, _ := newTestSession(chatAPI, conn)
	defer sess.Close()

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := sess.AddMember(context.Background(), "carol"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("AddMember() error = %v, want ErrPermissionDenied", err)
	}
}

func TestSession_Close(t *testing.T) {
	chatAPI := &fakeAPI{chats: []*api.ChatResponse{memberChat()}, page: historyPage()}
	conn := &fakeConn{}
	sess, bus := newTestSession(chatAPI, conn)

	if err := sess.Load(context.Background(), 42); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if bus.MessageHandlerCount() != 1 || bus.ConnectionHandlerCount() != 1 {
		t.Fatal("expected one handler of each kind after Load")
	}

	sess.Close()

	if bus.MessageHandlerCount() != 0 || bus.ConnectionHandlerCount() != 0 {
		t.Error("Close left handlers registered")
	}
	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}

	// Frames after Close must not mutate the feed.
	before := len(sess.Messages())
	bus.PublishMessage(model.Frame{Type: model.FrameMessage, MessageID: 99, Content: "late"})
	if len(sess.Messages()) != before {
		t.Error("frame after Close mutated the feed")
	}

	sess.Close()
	if conn.disconnects != 1 {
		t.Errorf("disconnects after second Close = %d, want 1", conn.disconnects)
	}
}
