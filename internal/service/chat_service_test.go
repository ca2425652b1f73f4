package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"ai-chatroom/internal/domain"
	"ai-chatroom/internal/llm"
)

type sentEvent struct {
	target  string // sala o conexión
	direct  bool
	event   string
	payload any
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
	joins  map[string]string
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{joins: make(map[string]string)}
}

func (m *mockBroadcaster) JoinRoom(connID, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins[connID] = room
}

func (m *mockBroadcaster) LeaveRoom(connID, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joins[connID] == room {
		delete(m.joins, connID)
	}
}

func (m *mockBroadcaster) Broadcast(room, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, sentEvent{target: room, event: event, payload: payload})
}

func (m *mockBroadcaster) Send(connID, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, sentEvent{target: connID, direct: true, event: event, payload: payload})
}

func (m *mockBroadcaster) filter(event string) []sentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentEvent
	for _, e := range m.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockBroadcaster) chatMessages() []domain.Message {
	var out []domain.Message
	for _, e := range m.filter(domain.EventChatMessage) {
		out = append(out, e.payload.(domain.Message))
	}
	return out
}

type chatFixture struct {
	svc      *ChatService
	rooms    *RoomRegistry
	sessions *SessionRegistry
	repo     *mockMessageRepo
	llm      *llm.MockClient
	out      *mockBroadcaster
}

func newChatFixture(t *testing.T, withStore bool) *chatFixture {
	t.Helper()
	f := &chatFixture{
		rooms:    NewRoomRegistry(),
		sessions: NewSessionRegistry(),
		llm:      &llm.MockClient{Response: "AI says hi"},
		out:      newMockBroadcaster(),
	}
	messages := NewMessageService(nil)
	if withStore {
		f.repo = &mockMessageRepo{}
		messages = NewMessageService(f.repo)
	}
	f.svc = NewChatService(zap.NewNop(), f.rooms, f.sessions, messages, f.llm, f.out, ChatOptions{
		CompletionTimeout: time.Second,
		StoreTimeout:      time.Second,
	})
	return f
}

func TestChatService_JoinWithoutHistory(t *testing.T) {
	f := newChatFixture(t, true)
	f.svc.Join(context.Background(), "c1", domain.JoinPayload{Room: "r1", User: "alice"})

	history := f.out.filter(domain.EventHistory)
	if len(history) != 1 || !history[0].direct || history[0].target != "c1" {
		t.Fatalf("expected history sent only to c1, got %+v", history)
	}
	if msgs := history[0].payload.([]domain.Message); len(msgs) != 0 {
		t.Fatalf("expected empty history, got %+v", msgs)
	}

	system := f.out.filter(domain.EventSystem)
	if len(system) != 1 || system[0].target != "r1" || system[0].direct {
		t.Fatalf("expected one room broadcast, got %+v", system)
	}
	if got := system[0].payload.(domain.SystemNotice).Text; got != "alice 已加入房間" {
		t.Fatalf("unexpected join notice %q", got)
	}

	members := f.out.filter(domain.EventMembers)
	if len(members) != 1 || len(members[0].payload.(domain.MembersPayload).Users) != 1 {
		t.Fatalf("expected members broadcast with alice, got %+v", members)
	}
	if f.out.joins["c1"] != "r1" {
		t.Fatalf("expected transport join")
	}
}

func TestChatService_JoinReplaysHistoryToSenderOnly(t *testing.T) {
	f := newChatFixture(t, true)
	f.repo.listData = []domain.Message{
		{ID: "m1", Room: "r1", Text: "a", Timestamp: time.Unix(1, 0)},
		{ID: "m2", Room: "r1", Text: "b", Timestamp: time.Unix(2, 0)},
	}
	f.svc.Join(context.Background(), "c1", domain.JoinPayload{Room: "r1", User: "alice"})

	if f.repo.lastLimit != 200 {
		t.Fatalf("expected history cap 200, got %d", f.repo.lastLimit)
	}
	for _, e := range f.out.filter(domain.EventHistory) {
		if !e.direct || e.target != "c1" {
			t.Fatalf("history must never be broadcast: %+v", e)
		}
	}
	if len(f.out.filter(domain.EventHistory)[0].payload.([]domain.Message)) != 2 {
		t.Fatalf("expected 2 history records")
	}
}

func TestChatService_JoinWithoutStoreSkipsHistory(t *testing.T) {
	f := newChatFixture(t, false)
	f.svc.Join(context.Background(), "c1", domain.JoinPayload{Room: "r1", User: "alice"})
	if got := f.out.filter(domain.EventHistory); len(got) != 0 {
		t.Fatalf("expected no history without store, got %+v", got)
	}
	if got := f.out.filter(domain.EventSystem); len(got) != 1 {
		t.Fatalf("expected join notice even without store")
	}
}

func TestChatService_JoinHistoryErrorIsNotFatal(t *testing.T) {
	f := newChatFixture(t, true)
	f.repo.listErr = errors.New("store down")
	f.svc.Join(context.Background(), "c1", domain.JoinPayload{Room: "r1", User: "alice"})
	if len(f.out.filter(domain.EventHistory)) != 0 {
		t.Fatalf("expected no history on store error")
	}
	if got := f.rooms.Members("r1"); len(got) != 1 {
		t.Fatalf("expected membership updated despite store error")
	}
}

func TestChatService_JoinInvalidPayloadDropped(t *testing.T) {
	f := newChatFixture(t, true)
	f.svc.Join(context.Background(), "c1", domain.JoinPayload{Room: " ", User: "alice"})
	if len(f.out.events) != 0 || f.sessions.Count() != 0 {
		t.Fatalf("expected invalid join to be dropped")
	}
}

func TestChatService_RejoinDifferentRoomLeavesPrevious(t *testing.T) {
	f := newChatFixture(t, false)
	ctx := context.Background()
	f.svc.Join(ctx, "c1", domain.JoinPayload{Room: "r1", User: "alice"})
	f.svc.Join(ctx, "c1", domain.JoinPayload{Room: "r2", User: "alice"})

	if got := f.rooms.Members("r1"); len(got) != 0 {
		t.Fatalf("expected alice to leave r1, got %v", got)
	}
	if got := f.rooms.Members("r2"); len(got) != 1 {
		t.Fatalf("expected alice in r2, got %v", got)
	}
	if f.out.joins["c1"] != "r2" {
		t.Fatalf("expected transport moved to r2")
	}
}

func TestChatService_DisconnectKeepsUserWithOtherConnection(t *testing.T) {
	f := newChatFixture(t, false)
	ctx := context.Background()
	f.svc.Join(ctx, "tab-1", domain.JoinPayload{Room: "r1", User: "alice"})
	f.svc.Join(ctx, "tab-2", domain.JoinPayload{Room: "r1", User: "alice"})
	f.svc.Join(ctx, "c3", domain.JoinPayload{Room: "r1", User: "bob"})

	f.svc.Disconnect(ctx, "tab-1")
	if got := f.rooms.Members("r1"); len(got) != 2 {
		t.Fatalf("expected alice kept by tab-2, got %v", got)
	}
	f.svc.Disconnect(ctx, "tab-2")
	if got := f.rooms.Members("r1"); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("expected only bob, got %v", got)
	}

	members := f.out.filter(domain.EventMembers)
	last := members[len(members)-1].payload.(domain.MembersPayload)
	if len(last.Users) != 1 || last.Users[0] != "bob" {
		t.Fatalf("expected members broadcast after disconnect, got %+v", last)
	}

	before := len(f.out.events)
	f.svc.Disconnect(ctx, "never-joined")
	if len(f.out.events) != before {
		t.Fatalf("disconnect of unbound connection must be silent")
	}
}

func TestChatService_PersonaCommand(t *testing.T) {
	f := newChatFixture(t, true)
	f.svc.HandleChat(context.Background(), "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "/role 老師"})

	persona, ok := f.rooms.Persona("r1")
	if !ok || persona != BuildPersonaDirective("老師", "") {
		t.Fatalf("unexpected persona %q", persona)
	}
	if f.llm.CallCount() != 0 {
		t.Fatalf("persona command must not call the completer")
	}
	notices := f.out.filter(domain.EventSystem)
	if len(notices) != 1 || notices[0].payload.(domain.SystemNotice).Text != "🛠️ 房間角色已設定為：老師" {
		t.Fatalf("unexpected notices %+v", notices)
	}
	if len(f.out.chatMessages()) != 0 {
		t.Fatalf("persona command must not broadcast chat messages")
	}
	saved := f.repo.saved()
	if len(saved) != 1 || saved[0].Role != domain.RoleSystem || saved[0].User != domain.AuthorSystem || saved[0].Text != "角色設定：老師" {
		t.Fatalf("unexpected persisted record %+v", saved)
	}
}

func TestChatService_EmptyPersonaFallsThrough(t *testing.T) {
	f := newChatFixture(t, true)
	f.rooms.SetPersona("r1", "previous")

	f.svc.HandleChat(context.Background(), "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "/role   "})

	if p, _ := f.rooms.Persona("r1"); p != "previous" {
		t.Fatalf("persona must be unchanged, got %q", p)
	}
	msgs := f.out.chatMessages()
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[0].Text != "/role   " {
		t.Fatalf("expected ordinary message handling, got %+v", msgs)
	}
	if f.llm.CallCount() != 1 {
		t.Fatalf("expected completion call")
	}
}

func TestChatService_OrdinaryMessageWithPersona(t *testing.T) {
	f := newChatFixture(t, true)
	ctx := context.Background()
	f.svc.HandleChat(ctx, "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "/role 老師"})
	f.svc.HandleChat(ctx, "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "你好"})

	call := f.llm.LastCall()
	if len(call) != 2 {
		t.Fatalf("expected exactly two entries, got %+v", call)
	}
	if call[0].Role != llm.RoleSystem || call[0].Content != BuildPersonaDirective("老師", "") {
		t.Fatalf("unexpected system entry %+v", call[0])
	}
	if call[1].Role != llm.RoleUser || call[1].Content != "你好" {
		t.Fatalf("unexpected user entry %+v", call[1])
	}

	msgs := f.out.chatMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected user + ai messages, got %+v", msgs)
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].User != "alice" {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleAI || msgs[1].User != domain.AuthorAI || msgs[1].Text != "AI says hi" {
		t.Fatalf("unexpected ai message %+v", msgs[1])
	}
	if !msgs[1].Timestamp.After(msgs[0].Timestamp) {
		t.Fatalf("expected ai message stamped after user message")
	}

	saved := f.repo.saved()
	// registro de persona + usuario + ai
	if len(saved) != 3 || saved[1].ID != msgs[0].ID || saved[2].ID != msgs[1].ID {
		t.Fatalf("expected persisted records to match broadcasts, got %+v", saved)
	}
}

func TestChatService_CompletionFailure(t *testing.T) {
	f := newChatFixture(t, true)
	f.llm.Err = errors.New("429 quota")

	f.svc.HandleChat(context.Background(), "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "你好"})

	msgs := f.out.chatMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected user + fallback, got %+v", msgs)
	}
	if msgs[0].Role != domain.RoleUser {
		t.Fatalf("expected user message first")
	}
	if msgs[1].Role != domain.RoleSystem || msgs[1].Text != CompletionFallback {
		t.Fatalf("unexpected fallback %+v", msgs[1])
	}
	saved := f.repo.saved()
	if len(saved) != 1 || saved[0].Role != domain.RoleUser {
		t.Fatalf("fallback must not be persisted, got %+v", saved)
	}

	// La sala sigue operando.
	f.llm.Err = nil
	f.svc.HandleChat(context.Background(), "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "again"})
	if got := f.out.chatMessages(); got[len(got)-1].Role != domain.RoleAI {
		t.Fatalf("expected ai reply after recovery")
	}
}

func TestChatService_EmptyCompletionUsesPlaceholder(t *testing.T) {
	f := newChatFixture(t, true)
	f.llm.Response = "  "
	f.svc.HandleChat(context.Background(), "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "hi"})

	msgs := f.out.chatMessages()
	if len(msgs) != 2 || msgs[1].Role != domain.RoleAI || msgs[1].Text != CompletionNoReply {
		t.Fatalf("expected placeholder ai reply, got %+v", msgs)
	}
}

func TestChatService_StoreFailureDoesNotBlockBroadcast(t *testing.T) {
	f := newChatFixture(t, true)
	f.repo.createErr = errors.New("disk full")
	f.svc.HandleChat(context.Background(), "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "hi"})

	if msgs := f.out.chatMessages(); len(msgs) != 2 {
		t.Fatalf("expected broadcasts despite store failure, got %+v", msgs)
	}
}

func TestChatService_InvalidChatDropped(t *testing.T) {
	f := newChatFixture(t, true)
	cases := []domain.ChatPayload{
		{User: "alice", Text: "hi"},
		{Room: "r1", Text: "hi"},
		{Room: "r1", User: "alice", Text: "   "},
	}
	for _, p := range cases {
		f.svc.HandleChat(context.Background(), "c1", p)
	}
	if len(f.out.events) != 0 || f.llm.CallCount() != 0 || len(f.repo.saved()) != 0 {
		t.Fatalf("expected invalid submissions to be dropped silently")
	}
}

func TestChatService_PersonaIsRoomScoped(t *testing.T) {
	f := newChatFixture(t, false)
	ctx := context.Background()
	f.svc.HandleChat(ctx, "c1", domain.ChatPayload{Room: "A", User: "alice", Text: "/角色 海盜"})
	f.svc.HandleChat(ctx, "c2", domain.ChatPayload{Room: "B", User: "bob", Text: "hello"})

	call := f.llm.LastCall()
	if len(call) != 1 || call[0].Role != llm.RoleUser {
		t.Fatalf("room B request must not carry room A persona, got %+v", call)
	}
}

func TestChatService_ConcurrentRoomsKeepPairing(t *testing.T) {
	f := newChatFixture(t, true)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.HandleChat(context.Background(), "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "hi"})
		}()
	}
	wg.Wait()

	var users, ais int
	var last time.Time
	for _, m := range f.out.chatMessages() {
		switch m.Role {
		case domain.RoleUser:
			users++
		case domain.RoleAI:
			ais++
		}
		if !m.Timestamp.After(last) {
			t.Fatalf("broadcast order must follow timestamps")
		}
		last = m.Timestamp
	}
	if users != 10 || ais != 10 {
		t.Fatalf("expected 10 user and 10 ai messages, got %d/%d", users, ais)
	}
	if len(f.repo.saved()) != 20 {
		t.Fatalf("expected 20 persisted records, got %d", len(f.repo.saved()))
	}
}

func TestChatService_Stats(t *testing.T) {
	f := newChatFixture(t, true)
	f.svc.Join(context.Background(), "c1", domain.JoinPayload{Room: "r1", User: "alice"})
	st := f.svc.Stats()
	if st.Rooms != 1 || st.Sessions != 1 || !st.StoreEnabled {
		t.Fatalf("unexpected stats %+v", st)
	}
}

// stallingRepo retiene las escrituras de un usuario hasta que vence el contexto.
type stallingRepo struct {
	mockMessageRepo
	stallUser string
}

func (r *stallingRepo) Create(ctx context.Context, message domain.Message) error {
	if message.User == r.stallUser {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.mockMessageRepo.Create(ctx, message)
}

func TestChatService_SlowStoreDoesNotStallRoom(t *testing.T) {
	out := newMockBroadcaster()
	repo := &stallingRepo{stallUser: "alice"}
	svc := NewChatService(zap.NewNop(), NewRoomRegistry(), NewSessionRegistry(), NewMessageService(repo),
		&llm.MockClient{Response: "ok"}, out, ChatOptions{
			CompletionTimeout: time.Second,
			StoreTimeout:      2 * time.Second,
		})

	aliceDone := make(chan struct{})
	go func() {
		defer close(aliceDone)
		svc.HandleChat(context.Background(), "c1", domain.ChatPayload{Room: "r1", User: "alice", Text: "hi"})
	}()

	// Espera a que el mensaje de alice se difunda y su escritura quede colgada.
	deadline := time.Now().Add(time.Second)
	for len(out.chatMessages()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("alice's message was never broadcast")
		}
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	svc.HandleChat(context.Background(), "c2", domain.ChatPayload{Room: "r1", User: "bob", Text: "yo"})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("bob's message waited %v on another user's store write", elapsed)
	}

	var fromBob int
	for _, m := range out.chatMessages() {
		if m.User == "bob" {
			fromBob++
		}
	}
	if fromBob != 1 {
		t.Fatalf("expected bob's message broadcast, got %d", fromBob)
	}
	<-aliceDone
}
