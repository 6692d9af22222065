package service

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vedran77/sprout/internal/domain"
	"github.com/vedran77/sprout/internal/envelope"
	"github.com/vedran77/sprout/internal/keyservice"
	"github.com/vedran77/sprout/internal/logger"
	"github.com/vedran77/sprout/internal/repository"
	"github.com/vedran77/sprout/internal/repository/memory"
)

const testMasterKey = "test-master"

type recordingNotifier struct {
	mu    sync.Mutex
	calls []int64
}

func (n *recordingNotifier) NotifyNewMessage(recipientID int64, _ *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recipientID)
}

type failingCipher struct{}

func (failingCipher) Encrypt(context.Context, []byte) (envelope.Sealed, error) {
	return envelope.Sealed{}, envelope.ErrEncryption
}

func (failingCipher) Decrypt(context.Context, envelope.Sealed) ([]byte, error) {
	return nil, envelope.ErrDecryption
}

func newTestCipher(t *testing.T) *envelope.Cipher {
	t.Helper()
	keys := keyservice.NewLocal()
	if err := keys.GenerateKey(testMasterKey); err != nil {
		t.Fatalf("generating master key: %v", err)
	}
	c, err := envelope.New(keys, testMasterKey)
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	return c
}

func newTestChatService(t *testing.T, cipher ContentCipher) (*ChatService, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.AddUser(domain.User{ID: 1, Username: "alice"})
	store.AddUser(domain.User{ID: 2, Username: "bob"})
	store.AddUser(domain.User{ID: 3, Username: "carol"})
	if cipher == nil {
		cipher = newTestCipher(t)
	}
	svc := NewChatService(store.Chats(), store.Messages(), store.Users(), store.Follows(), cipher, logger.Nop())
	return svc, store
}

func TestSendAndReadScenario(t *testing.T) {
	svc, store := newTestChatService(t, nil)
	ctx := context.Background()

	chat, err := svc.GetOrCreateChat(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !chat.SeenBy(1) || chat.SeenBy(2) {
		t.Fatalf("expected creator seen and other unseen, got a=%v b=%v", chat.SeenByA, chat.SeenByB)
	}

	view, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{
		RecipientID: 2,
		MessageType: domain.MessageTypeText,
		Content:     "hi",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if view.Content != "hi" || !view.IsMine {
		t.Fatalf("unexpected view: %+v", view)
	}

	stored, _ := store.Messages().ListByChat(ctx, chat.ID, 0, 10)
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(stored))
	}
	m := stored[0]
	if len(m.Ciphertext) == 0 || len(m.WrappedKey) == 0 || len(m.Nonce) == 0 || m.Scheme == "" {
		t.Fatalf("expected complete envelope, got %+v", m)
	}
	if bytes.Contains(m.Ciphertext, []byte("hi")) {
		t.Fatalf("ciphertext contains plaintext")
	}

	page, err := svc.GetChatMessages(ctx, chat.ID, 2, 0, 0)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Content != "hi" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Messages[0].IsMine {
		t.Fatalf("expected message not marked as the reader's")
	}

	after, _ := store.Chats().GetByID(ctx, chat.ID)
	if !after.SeenBy(2) {
		t.Fatalf("expected reader marked seen")
	}
}

func TestSendUpdatesSeenAndLastMessage(t *testing.T) {
	svc, store := newTestChatService(t, nil)
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)

	// Bob reads first so both sides start seen.
	if _, err := svc.GetChatMessages(ctx, chat.ID, 2, 0, 0); err != nil {
		t.Fatalf("get messages: %v", err)
	}

	view, err := svc.SendMessage(ctx, 2, chat.ID, SendMessageInput{Content: "yo"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	after, _ := store.Chats().GetByID(ctx, chat.ID)
	if after.LastMessageID == nil || *after.LastMessageID != view.ID {
		t.Fatalf("expected last message %d, got %v", view.ID, after.LastMessageID)
	}
	if after.SeenBy(1) || !after.SeenBy(2) {
		t.Fatalf("expected sender seen only, got a=%v b=%v", after.SeenByA, after.SeenByB)
	}
}

func TestSendByNonParticipant(t *testing.T) {
	svc, store := newTestChatService(t, nil)
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)

	_, err := svc.SendMessage(ctx, 3, chat.ID, SendMessageInput{Content: "let me in"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if n := store.MessageCount(chat.ID); n != 0 {
		t.Fatalf("expected no message row, got %d", n)
	}

	if _, err := svc.GetChatMessages(ctx, chat.ID, 3, 0, 0); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized on read, got %v", err)
	}
}

func TestSendErrors(t *testing.T) {
	svc, _ := newTestChatService(t, nil)
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)

	if _, err := svc.SendMessage(ctx, 1, 999, SendMessageInput{Content: "hi"}); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{RecipientID: 3, Content: "hi"}); !errors.Is(err, ErrRecipientMismatch) {
		t.Fatalf("expected ErrRecipientMismatch, got %v", err)
	}
	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{MessageType: "sticker"}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestGetOrCreateChatErrors(t *testing.T) {
	svc, _ := newTestChatService(t, nil)
	ctx := context.Background()

	if _, err := svc.GetOrCreateChat(ctx, 1, 1); !errors.Is(err, ErrCannotChatSelf) {
		t.Fatalf("expected ErrCannotChatSelf, got %v", err)
	}
	if _, err := svc.GetOrCreateChat(ctx, 1, 42); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestConcurrentGetOrCreateYieldsOneChat(t *testing.T) {
	svc, store := newTestChatService(t, nil)
	ctx := context.Background()

	const n = 40
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			chat, err := svc.GetOrCreateChat(ctx, a, b)
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids[i] = chat.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one chat id, got %v", ids)
		}
	}
	chats, _ := store.Chats().ListByUser(ctx, 1)
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}
}

func TestInboxLock(t *testing.T) {
	svc, store := newTestChatService(t, nil)
	store.AddUser(domain.User{ID: 2, Username: "bob", InboxLocked: true})
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)

	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: "hi"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected locked inbox to refuse, got %v", err)
	}

	// Alice following Bob does not open Bob's inbox.
	store.AddFollow(1, 2)
	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: "hi"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected locked inbox to refuse, got %v", err)
	}

	store.AddFollow(2, 1)
	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: "hi"}); err != nil {
		t.Fatalf("expected followed sender to pass, got %v", err)
	}
}

func TestDecryptionFailureAbortsPage(t *testing.T) {
	svc, store := newTestChatService(t, nil)
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)

	first, _ := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: "one"})
	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: "two"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	store.Messages().Tamper(chat.ID, first.ID, func(m *domain.Message) {
		m.Ciphertext[0] ^= 0xff
	})

	page, err := svc.GetChatMessages(ctx, chat.ID, 2, 0, 0)
	if !errors.Is(err, envelope.ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
	if page != nil {
		t.Fatalf("expected no partial page, got %+v", page)
	}
}

func TestPagination(t *testing.T) {
	svc, _ := newTestChatService(t, nil)
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)

	for _, c := range []string{"m1", "m2", "m3", "m4", "m5"} {
		if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: c}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	page, err := svc.GetChatMessages(ctx, chat.ID, 1, 0, 2)
	if err != nil {
		t.Fatalf("page 0: %v", err)
	}
	if !page.HasMore || len(page.Messages) != 2 || page.Messages[0].Content != "m5" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	last, _ := svc.GetChatMessages(ctx, chat.ID, 1, 2, 2)
	if last.HasMore || len(last.Messages) != 1 || last.Messages[0].Content != "m1" {
		t.Fatalf("unexpected last page: %+v", last)
	}

	big, _ := svc.GetChatMessages(ctx, chat.ID, 1, 0, 1000)
	if big.Size != MaxPageSize {
		t.Fatalf("expected size clamped to %d, got %d", MaxPageSize, big.Size)
	}
}

func TestHugePageIsEmpty(t *testing.T) {
	svc, _ := newTestChatService(t, nil)
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)
	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, p := range []int{math.MaxInt/30 + 1, math.MaxInt} {
		page, err := svc.GetChatMessages(ctx, chat.ID, 2, p, 30)
		if err != nil {
			t.Fatalf("page %d: %v", p, err)
		}
		if len(page.Messages) != 0 || page.HasMore {
			t.Fatalf("page %d: expected empty page, got %+v", p, page)
		}
	}
}

// gatedChats holds GetByParticipants until release is closed.
type gatedChats struct {
	repository.ChatRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedChats) GetByParticipants(ctx context.Context, a, b int64) (*domain.Chat, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.ChatRepository.GetByParticipants(ctx, a, b)
}

func TestGetOrCreateSurvivesCancelledLeader(t *testing.T) {
	store := memory.New()
	store.AddUser(domain.User{ID: 1, Username: "alice"})
	store.AddUser(domain.User{ID: 2, Username: "bob"})
	chats := &gatedChats{
		ChatRepository: store.Chats(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	svc := NewChatService(chats, store.Messages(), store.Users(), store.Follows(), newTestCipher(t), logger.Nop())

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.GetOrCreateChat(leaderCtx, 1, 2)
		leaderErr <- err
	}()
	<-chats.entered

	followerDone := make(chan error, 1)
	go func() {
		chat, err := svc.GetOrCreateChat(context.Background(), 2, 1)
		if err == nil && chat.ID == 0 {
			err = errors.New("chat has no id")
		}
		followerDone <- err
	}()

	cancel()
	select {
	case err := <-leaderErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancelled leader, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled caller did not return")
	}

	close(chats.release)
	select {
	case err := <-followerDone:
		if err != nil {
			t.Fatalf("waiting caller failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiting caller did not return")
	}
}

func TestMediaMessageWithoutContent(t *testing.T) {
	svc, _ := newTestChatService(t, nil)
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)
	url := "https://cdn.example.com/cat.gif"

	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{MessageType: domain.MessageTypeGIF, MediaURL: &url}); err != nil {
		t.Fatalf("send: %v", err)
	}
	page, err := svc.GetChatMessages(ctx, chat.ID, 2, 0, 0)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	got := page.Messages[0]
	if got.Content != "" || got.MediaURL == nil || *got.MediaURL != url {
		t.Fatalf("unexpected media message: %+v", got)
	}
}

func TestSendNotifiesRecipient(t *testing.T) {
	svc, _ := newTestChatService(t, nil)
	n := &recordingNotifier{}
	svc.SetNotifier(n)
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)

	if _, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(n.calls) != 1 || n.calls[0] != 2 {
		t.Fatalf("expected one notification for user 2, got %v", n.calls)
	}
}

func TestEncryptionFailureWritesNothing(t *testing.T) {
	svc, store := newTestChatService(t, failingCipher{})
	ctx := context.Background()
	chat, _ := svc.GetOrCreateChat(ctx, 1, 2)

	_, err := svc.SendMessage(ctx, 1, chat.ID, SendMessageInput{Content: "hi"})
	if !errors.Is(err, envelope.ErrEncryption) {
		t.Fatalf("expected ErrEncryption, got %v", err)
	}
	if n := store.MessageCount(chat.ID); n != 0 {
		t.Fatalf("expected no message row, got %d", n)
	}
}

func TestListChats(t *testing.T) {
	svc, _ := newTestChatService(t, nil)
	ctx := context.Background()
	c12, _ := svc.GetOrCreateChat(ctx, 1, 2)
	c13, _ := svc.GetOrCreateChat(ctx, 1, 3)
	if _, err := svc.SendMessage(ctx, 3, c13.ID, SendMessageInput{Content: "hey"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	views, err := svc.ListChats(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 || views[0].ID != c13.ID || views[1].ID != c12.ID {
		t.Fatalf("expected most recent first, got %+v", views)
	}
	if views[0].Seen || views[0].OtherUserUsername != "carol" {
		t.Fatalf("unexpected view: %+v", views[0])
	}
}
