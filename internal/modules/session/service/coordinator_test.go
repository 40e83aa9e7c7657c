package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"anoa.com/drawsocial/internal/entity"
	"anoa.com/drawsocial/internal/logger"
	"anoa.com/drawsocial/internal/metrics"
	awardService "anoa.com/drawsocial/internal/modules/award/service"
	friendshipRepo "anoa.com/drawsocial/internal/modules/friendship/repository"
	friendshipService "anoa.com/drawsocial/internal/modules/friendship/service"
	leaderboardDto "anoa.com/drawsocial/internal/modules/leaderboard/dto"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	searchDto "anoa.com/drawsocial/internal/modules/search/dto"
	"anoa.com/drawsocial/pkg/apperror"
	"anoa.com/drawsocial/pkg/docstore"
)

type fakeProfiles struct{}

func (fakeProfiles) FetchProfile(ctx context.Context, uid string) (*profileDto.Profile, error) {
	return &profileDto.Profile{UID: uid, Handle: "h_" + uid, DisplayName: "D " + uid}, nil
}

func (f fakeProfiles) HydrateAll(ctx context.Context, uids []string) ([]profileDto.Profile, error) {
	out := make([]profileDto.Profile, 0, len(uids))
	for _, uid := range uids {
		p, _ := f.FetchProfile(ctx, uid)
		out = append(out, *p)
	}
	return out, nil
}

type fakeAwards struct {
	mu         sync.Mutex
	usage      entity.AwardUsage
	allocateFn func(medal entity.MedalType, recipient string) (awardService.Outcome, error)
}

func (f *fakeAwards) Allocate(ctx context.Context, medal entity.MedalType, giver, recipient string) (awardService.Outcome, error) {
	outcome, err := f.allocateFn(medal, recipient)
	if err == nil && outcome == awardService.OutcomeAllocated {
		f.mu.Lock()
		f.usage.MarkUsed(medal)
		f.mu.Unlock()
	}
	return outcome, err
}

func (f *fakeAwards) TodayUsage(ctx context.Context, giver string) (entity.AwardUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage, nil
}

type fakeSearch struct {
	mu       sync.Mutex
	queries  []string
	searchFn func(ctx context.Context, query string) ([]searchDto.UserHit, error)
}

func (f *fakeSearch) SearchFor(ctx context.Context, me, query string, limit int, friends map[string]struct{}) ([]searchDto.UserHit, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.searchFn != nil {
		return f.searchFn(ctx, query)
	}
	return []searchDto.UserHit{{UserDoc: searchDto.UserDoc{ID: "hit_" + query}}}, nil
}

func (f *fakeSearch) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeLeaderboards struct {
	entries []leaderboardDto.Entry
	err     error
}

func (f *fakeLeaderboards) FriendsLeaderboard(ctx context.Context, me string) ([]leaderboardDto.Entry, error) {
	return f.entries, f.err
}

type fakeSink struct {
	mu     sync.Mutex
	actors []string
	bodies []string
}

func (f *fakeSink) Notify(actorID, title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actors = append(f.actors, actorID)
	f.bodies = append(f.bodies, body)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

type countingRecorder struct {
	metrics.NopRecorder
	notified int32
}

func (r *countingRecorder) RecordIncomingNotified(count int) {
	atomic.AddInt32(&r.notified, int32(count))
}

// flakyFriendships fails RemoveFriend when removeErr is set.
type flakyFriendships struct {
	friendshipService.FriendshipService
	removeErr error
}

func (f *flakyFriendships) RemoveFriend(ctx context.Context, me, other string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.FriendshipService.RemoveFriend(ctx, me, other)
}

type harness struct {
	c        *Coordinator
	friends  friendshipService.FriendshipService
	flaky    *flakyFriendships
	awards   *fakeAwards
	search   *fakeSearch
	board    *fakeLeaderboards
	sink     *fakeSink
	recorder *countingRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := docstore.NewMemoryStore()
	friends := friendshipService.NewFriendshipService(friendshipRepo.NewFriendshipRepository(store), fakeProfiles{}, nil, nil, logger.Discard())
	h := &harness{
		friends:  friends,
		flaky:    &flakyFriendships{FriendshipService: friends},
		awards:   &fakeAwards{usage: entity.AwardUsage{Day: "2026-05-01"}},
		search:   &fakeSearch{},
		board:    &fakeLeaderboards{},
		sink:     &fakeSink{},
		recorder: &countingRecorder{},
	}
	h.c = NewCoordinator("me", Deps{
		Awards:       h.awards,
		Friendships:  h.flaky,
		Profiles:     fakeProfiles{},
		Search:       h.search,
		Leaderboards: h.board,
		Sink:         h.sink,
		Metrics:      h.recorder,
		Logger:       logger.Discard(),
	}, Options{Debounce: 30 * time.Millisecond})
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, h.c, EventIncoming, nil)
}

// waitFor skips events until one of eventType satisfies match.
func waitFor(t *testing.T, c *Coordinator, eventType string, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events closed while waiting for %s", eventType)
			}
			if ev.Type == eventType && (match == nil || match(ev)) {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", eventType)
		}
	}
}

func state(t *testing.T, c *Coordinator) State {
	t.Helper()
	s, err := c.State()
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	return s
}

func TestStart_RestoresUsageAndFriends(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.awards.usage.GoldUsed = true
	if err := h.friends.SendRequest(ctx, "me", "f1", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := h.friends.Accept(ctx, "f1", "me"); err != nil {
		t.Fatal(err)
	}

	h.start(t)

	s := state(t, h.c)
	if !s.Usage.GoldUsed || s.Usage.SilverUsed {
		t.Errorf("usage = %+v, want gold only", s.Usage)
	}
	if len(s.FriendIDs) != 1 || s.FriendIDs[0] != "f1" {
		t.Errorf("friends = %v, want [f1]", s.FriendIDs)
	}
	if err := h.c.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
}

func TestIncoming_FirstSnapshotPrimesWithoutNotifying(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.friends.SendRequest(ctx, "a", "me", "ada", "Ada"); err != nil {
		t.Fatal(err)
	}

	if err := h.c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	first := waitFor(t, h.c, EventIncoming, nil).Data.(IncomingData)
	if len(first.Requests) != 1 || len(first.Arrived) != 0 {
		t.Errorf("first snapshot = %+v, want one request and nothing arrived", first)
	}
	if n := h.sink.count(); n != 0 {
		t.Errorf("notifications after prime = %d, want 0", n)
	}

	if err := h.friends.SendRequest(ctx, "b", "me", "bob", "Bob"); err != nil {
		t.Fatal(err)
	}
	next := waitFor(t, h.c, EventIncoming, func(ev Event) bool {
		return len(ev.Data.(IncomingData).Requests) == 2
	}).Data.(IncomingData)
	if len(next.Arrived) != 1 || next.Arrived[0].FromUID != "b" {
		t.Errorf("arrived = %+v, want [b]", next.Arrived)
	}

	// Re-sending from a known sender does not notify again.
	if err := h.friends.SendRequest(ctx, "a", "me", "ada", "Ada"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.c, EventIncoming, nil)

	if n := h.sink.count(); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
	if !strings.Contains(h.sink.bodies[0], "Bob") {
		t.Errorf("body = %q, want sender display name", h.sink.bodies[0])
	}
	if h.sink.actors[0] != "b" {
		t.Errorf("actor = %q, want b", h.sink.actors[0])
	}
	if n := atomic.LoadInt32(&h.recorder.notified); n != 1 {
		t.Errorf("recorded notified = %d, want 1", n)
	}
}

func TestSearch_DebouncesToLastInput(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.c.Search("a")
	h.c.Search("ab")
	h.c.Search(" abc ")

	ev := waitFor(t, h.c, EventSearchResults, nil)
	res := ev.Data.(SearchResults)
	if res.Query != "abc" || len(res.Hits) != 1 || res.Hits[0].ID != "hit_abc" {
		t.Errorf("results = %+v, want hit_abc", res)
	}
	if got := h.search.seen(); len(got) != 1 || got[0] != "abc" {
		t.Errorf("lookups = %v, want [abc]", got)
	}
}

func TestSearch_SupersededLookupIsCancelledAndDropped(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	h.search.searchFn = func(ctx context.Context, query string) ([]searchDto.UserHit, error) {
		if query == "slow" {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return []searchDto.UserHit{{UserDoc: searchDto.UserDoc{ID: "stale"}}}, nil
		}
		return []searchDto.UserHit{{UserDoc: searchDto.UserDoc{ID: "fresh"}}}, nil
	}
	h.start(t)

	h.c.Search("slow")
	<-started
	h.c.Search("fast")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight lookup not cancelled")
	}
	res := waitFor(t, h.c, EventSearchResults, nil).Data.(SearchResults)
	if res.Query != "fast" || res.Hits[0].ID != "fresh" {
		t.Errorf("results = %+v, want fresh", res)
	}
}

func TestSearch_EmptyInputClears(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.c.Search("   ")
	res := waitFor(t, h.c, EventSearchResults, nil).Data.(SearchResults)
	if res.Query != "" || len(res.Hits) != 0 {
		t.Errorf("results = %+v, want empty", res)
	}
	if got := h.search.seen(); len(got) != 0 {
		t.Errorf("lookups = %v, want none", got)
	}
}

func TestSearch_StoreAnswerReplacesStalePending(t *testing.T) {
	h := newHarness(t)
	h.search.searchFn = func(ctx context.Context, query string) ([]searchDto.UserHit, error) {
		pending, err := h.friends.HasPending(ctx, "me", query)
		if err != nil {
			return nil, err
		}
		return []searchDto.UserHit{{UserDoc: searchDto.UserDoc{ID: query}, Pending: pending}}, nil
	}
	h.start(t)
	ctx := context.Background()

	if err := h.c.SendRequest(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if err := h.friends.Decline(ctx, "b", "me"); err != nil {
		t.Fatal(err)
	}

	h.c.Search("b")
	res := waitFor(t, h.c, EventSearchResults, nil).Data.(SearchResults)
	if res.Hits[0].Pending {
		t.Error("hit b pending after decline, want false")
	}
	if s := state(t, h.c); len(s.PendingOutgoing) != 0 {
		t.Errorf("pending = %v, want empty", s.PendingOutgoing)
	}
}

func TestSearch_PendingFromStoreIsMirrored(t *testing.T) {
	h := newHarness(t)
	h.search.searchFn = func(ctx context.Context, query string) ([]searchDto.UserHit, error) {
		return []searchDto.UserHit{
			{UserDoc: searchDto.UserDoc{ID: "b"}, Pending: true},
			{UserDoc: searchDto.UserDoc{ID: "c"}},
		}, nil
	}
	h.start(t)

	h.c.Search("x")
	waitFor(t, h.c, EventSearchResults, nil)
	if s := state(t, h.c); len(s.PendingOutgoing) != 1 || s.PendingOutgoing[0] != "b" {
		t.Errorf("pending = %v, want [b]", s.PendingOutgoing)
	}
}

func TestRefreshPending_DropsDeclinedRequest(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ctx := context.Background()

	if err := h.c.SendRequest(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if err := h.friends.Decline(ctx, "b", "me"); err != nil {
		t.Fatal(err)
	}
	if err := h.c.RefreshPending(ctx, "b"); err != nil {
		t.Fatalf("RefreshPending() error = %v", err)
	}
	if s := state(t, h.c); len(s.PendingOutgoing) != 0 {
		t.Errorf("pending = %v, want empty", s.PendingOutgoing)
	}
}

func TestSendRequest(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ctx := context.Background()

	if err := h.c.SendRequest(ctx, "b"); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if s := state(t, h.c); len(s.PendingOutgoing) != 1 || s.PendingOutgoing[0] != "b" {
		t.Errorf("pending = %v, want [b]", s.PendingOutgoing)
	}
	pending, err := h.friends.HasPending(ctx, "me", "b")
	if err != nil || !pending {
		t.Errorf("HasPending = %v, %v", pending, err)
	}
}

func TestSendRequest_RollsBackOnFailure(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	err := h.c.SendRequest(context.Background(), "me")
	if !errors.Is(err, apperror.ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
	ev := waitFor(t, h.c, EventError, nil).Data.(ErrorData)
	if ev.Op != "send_request" || ev.Message == "" {
		t.Errorf("error event = %+v", ev)
	}
	if s := state(t, h.c); len(s.PendingOutgoing) != 0 {
		t.Errorf("pending = %v, want rolled back", s.PendingOutgoing)
	}
}

func TestAccept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.friends.SendRequest(ctx, "a", "me", "", ""); err != nil {
		t.Fatal(err)
	}
	h.start(t)

	if err := h.c.Accept(ctx, "a"); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	waitFor(t, h.c, EventFriends, func(ev Event) bool {
		return len(ev.Data.([]profileDto.Profile)) == 1
	})
	s := state(t, h.c)
	if len(s.FriendIDs) != 1 || s.FriendIDs[0] != "a" {
		t.Errorf("friends = %v, want [a]", s.FriendIDs)
	}
	for _, r := range s.Incoming {
		if r.FromUID == "a" {
			t.Error("accepted request still listed")
		}
	}
}

func TestAccept_MissingRequestRollsBack(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	err := h.c.Accept(context.Background(), "ghost")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	waitFor(t, h.c, EventError, func(ev Event) bool { return ev.Data.(ErrorData).Op == "accept" })
	if s := state(t, h.c); len(s.FriendIDs) != 0 {
		t.Errorf("friends = %v, want none", s.FriendIDs)
	}
}

func TestDecline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.friends.SendRequest(ctx, "a", "me", "", ""); err != nil {
		t.Fatal(err)
	}
	h.start(t)

	if err := h.c.Decline(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if s := state(t, h.c); len(s.Incoming) != 0 {
		t.Errorf("incoming = %+v, want empty", s.Incoming)
	}
	if n := h.sink.count(); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
}

func TestRemoveFriend_RollsBackOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.friends.SendRequest(ctx, "f1", "me", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := h.friends.Accept(ctx, "me", "f1"); err != nil {
		t.Fatal(err)
	}
	h.start(t)

	h.flaky.removeErr = apperror.ErrNetwork
	if err := h.c.RemoveFriend(ctx, "f1"); !errors.Is(err, apperror.ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}
	if s := state(t, h.c); len(s.FriendIDs) != 1 {
		t.Errorf("friends = %v, want restored [f1]", s.FriendIDs)
	}

	h.flaky.removeErr = nil
	if err := h.c.RemoveFriend(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if s := state(t, h.c); len(s.FriendIDs) != 0 {
		t.Errorf("friends = %v, want none", s.FriendIDs)
	}
}

func TestGiveMedal(t *testing.T) {
	tests := []struct {
		name     string
		outcome  awardService.Outcome
		err      error
		wantUsed bool
	}{
		{name: "allocated", outcome: awardService.OutcomeAllocated, wantUsed: true},
		{name: "failure rolls back", err: apperror.ErrNetwork, wantUsed: false},
		{name: "self award refetches", outcome: awardService.OutcomeSelfAward, wantUsed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.awards.allocateFn = func(medal entity.MedalType, recipient string) (awardService.Outcome, error) {
				return tt.outcome, tt.err
			}
			h.start(t)

			err := h.c.GiveMedal(context.Background(), entity.MedalSilver, "r")
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
			if s := state(t, h.c); s.Usage.SilverUsed != tt.wantUsed {
				t.Errorf("SilverUsed = %v, want %v", s.Usage.SilverUsed, tt.wantUsed)
			}
		})
	}
}

func TestGiveMedal_RejectsUnknownMedal(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	if err := h.c.GiveMedal(context.Background(), "platinum", "r"); !errors.Is(err, apperror.ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
}

func TestLeaderboard(t *testing.T) {
	h := newHarness(t)
	h.board.entries = []leaderboardDto.Entry{{UID: "me", Position: 1, IsMe: true}}
	h.start(t)

	if err := h.c.Leaderboard(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries := waitFor(t, h.c, EventLeaderboard, nil).Data.([]leaderboardDto.Entry)
	if len(entries) != 1 || !entries[0].IsMe {
		t.Errorf("entries = %+v", entries)
	}

	h.board.err = apperror.ErrNetwork
	if err := h.c.Leaderboard(context.Background()); !errors.Is(err, apperror.ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.c.Close()
	h.c.Close()

	for range h.c.Events() {
	}
	if err := h.c.SendRequest(context.Background(), "b"); !errors.Is(err, ErrClosed) {
		t.Errorf("SendRequest after Close = %v, want ErrClosed", err)
	}
	h.c.Search("ignored")
}

func TestContextCancelClosesSession(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	if err := h.c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-h.c.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events still open after context cancel")
		}
	}
}
