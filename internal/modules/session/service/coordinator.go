// Package service runs one authenticated user's live session: the friend and
// pending mirrors, debounced search, optimistic mutations and the incoming
// request listener.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"anoa.com/drawsocial/internal/entity"
	"anoa.com/drawsocial/internal/metrics"
	awardService "anoa.com/drawsocial/internal/modules/award/service"
	friendshipService "anoa.com/drawsocial/internal/modules/friendship/service"
	leaderboardDto "anoa.com/drawsocial/internal/modules/leaderboard/dto"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	searchDto "anoa.com/drawsocial/internal/modules/search/dto"
	"anoa.com/drawsocial/pkg/apperror"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("session closed")

type Awards interface {
	Allocate(ctx context.Context, medal entity.MedalType, giver, recipient string) (awardService.Outcome, error)
	TodayUsage(ctx context.Context, giver string) (entity.AwardUsage, error)
}

type Friendships interface {
	SendRequest(ctx context.Context, from, to, fromHandle, fromDisplay string) error
	Accept(ctx context.Context, me, other string) error
	Decline(ctx context.Context, me, other string) error
	RemoveFriend(ctx context.Context, me, other string) error
	HasPending(ctx context.Context, from, to string) (bool, error)
	FriendIDs(ctx context.Context, me string) ([]string, error)
	SubscribeIncoming(ctx context.Context, me string) (*friendshipService.IncomingFeed, error)
}

type Profiles interface {
	FetchProfile(ctx context.Context, uid string) (*profileDto.Profile, error)
	HydrateAll(ctx context.Context, uids []string) ([]profileDto.Profile, error)
}

type Searcher interface {
	SearchFor(ctx context.Context, me, query string, limit int, friends map[string]struct{}) ([]searchDto.UserHit, error)
}

type Leaderboards interface {
	FriendsLeaderboard(ctx context.Context, me string) ([]leaderboardDto.Entry, error)
}

// Sink receives a notification per newly arrived friend request.
type Sink interface {
	Notify(actorID, title, body string)
}

type Deps struct {
	Awards       Awards
	Friendships  Friendships
	Profiles     Profiles
	Search       Searcher
	Leaderboards Leaderboards
	Sink         Sink
	Metrics      metrics.Recorder
	Logger       *slog.Logger
}

type Options struct {
	Debounce    time.Duration
	SearchLimit int
	EventBuffer int
}

// State is a copy of the session mirrors.
type State struct {
	FriendIDs       []string               `json:"friend_ids"`
	PendingOutgoing []string               `json:"pending_outgoing"`
	Incoming        []entity.FriendRequest `json:"incoming"`
	Usage           entity.AwardUsage      `json:"usage"`
}

// Coordinator owns its state on a single event-loop goroutine. Service calls
// run on the caller's goroutine or on workers and post results back.
type Coordinator struct {
	id   string
	me   string
	deps Deps
	opts Options
	log  *slog.Logger

	actions  chan func()
	events   chan Event
	done     chan struct{}
	loopDone chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	feed      *friendshipService.IncomingFeed

	// Loop-owned.
	handle          string
	display         string
	friendIDs       map[string]struct{}
	friends         []profileDto.Profile
	pendingOutgoing map[string]struct{}
	sending         map[string]int
	incomingSet     map[string]struct{}
	incomingPrimed  bool
	incoming        []entity.FriendRequest
	usage           entity.AwardUsage
	searchGen       uint64
	searchTimer     *time.Timer
	searchCancel    context.CancelFunc
}

func NewCoordinator(me string, deps Deps, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 20
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	id := uuid.NewString()
	return &Coordinator{
		id:              id,
		me:              me,
		deps:            deps,
		opts:            opts,
		log:             deps.Logger.With(slog.String("session", id), slog.String("uid", me)),
		actions:         make(chan func()),
		events:          make(chan Event, opts.EventBuffer),
		done:            make(chan struct{}),
		loopDone:        make(chan struct{}),
		friendIDs:       make(map[string]struct{}),
		pendingOutgoing: make(map[string]struct{}),
		sending:         make(map[string]int),
		incomingSet:     make(map[string]struct{}),
	}
}

func (c *Coordinator) ID() string {
	return c.id
}

// Events is closed after Close.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Start restores today's usage, loads friends and starts the incoming
// listener. The session lives until Close or until ctx ends.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.me == "" {
		return apperror.ErrNotAuthenticated
	}
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return fmt.Errorf("session %s already started", c.id)
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	go c.loop()

	profile, err := c.deps.Profiles.FetchProfile(c.ctx, c.me)
	if err != nil {
		return err
	}
	if err := c.do(func() {
		c.handle = profile.Handle
		c.display = profile.DisplayName
	}); err != nil {
		return err
	}

	if err := c.RefreshUsage(c.ctx); err != nil {
		return err
	}
	if err := c.RefreshFriends(c.ctx); err != nil {
		return err
	}

	feed, err := c.deps.Friendships.SubscribeIncoming(c.ctx, c.me)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.feed = feed
	c.mu.Unlock()
	go c.listen(feed)

	c.log.Info("session started")
	return nil
}

// Close stops the listener, any pending search and the loop. Idempotent.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		feed, cancel, started := c.feed, c.cancel, c.ctx != nil
		c.mu.Unlock()

		if feed != nil {
			feed.Stop()
		}
		if cancel != nil {
			cancel()
		}
		close(c.done)
		if started {
			<-c.loopDone
		}
		close(c.events)
		c.log.Info("session closed")
	})
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)
	defer func() {
		if c.searchTimer != nil {
			c.searchTimer.Stop()
		}
		if c.searchCancel != nil {
			c.searchCancel()
		}
	}()
	for {
		select {
		case fn := <-c.actions:
			fn()
		case <-c.done:
			return
		case <-c.ctx.Done():
			go c.Close()
			<-c.done
			return
		}
	}
}

// post queues fn on the loop. It reports false once the session is closed.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.actions <- fn:
		return true
	case <-c.done:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (c *Coordinator) do(fn func()) error {
	finished := make(chan struct{})
	if !c.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// publish runs on the loop.
func (c *Coordinator) publish(eventType string, data any) {
	select {
	case c.events <- Event{Type: eventType, Data: data}:
	case <-c.done:
	}
}

func (c *Coordinator) publishError(op string, err error) {
	c.log.Warn("session operation failed", slog.String("op", op), slog.String("error", err.Error()))
	c.publish(EventError, ErrorData{Op: op, Message: apperror.UserMessage(err)})
}

// State returns a copy of the mirrors.
func (c *Coordinator) State() (State, error) {
	var s State
	err := c.do(func() {
		s = State{
			FriendIDs:       sortedKeys(c.friendIDs),
			PendingOutgoing: sortedKeys(c.pendingOutgoing),
			Incoming:        append([]entity.FriendRequest(nil), c.incoming...),
			Usage:           c.usage,
		}
	})
	return s, err
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Coordinator) RefreshUsage(ctx context.Context) error {
	usage, err := c.deps.Awards.TodayUsage(ctx, c.me)
	if err != nil {
		c.do(func() { c.publishError("usage", err) })
		return err
	}
	return c.do(func() {
		c.usage = usage
		c.publish(EventUsage, usage)
	})
}

// RefreshFriends refetches friend ids and hydrates their profiles concurrently.
func (c *Coordinator) RefreshFriends(ctx context.Context) error {
	ids, err := c.deps.Friendships.FriendIDs(ctx, c.me)
	if err == nil {
		var friends []profileDto.Profile
		friends, err = c.deps.Profiles.HydrateAll(ctx, ids)
		if err == nil {
			return c.do(func() {
				c.friendIDs = make(map[string]struct{}, len(ids))
				for _, id := range ids {
					c.friendIDs[id] = struct{}{}
					delete(c.pendingOutgoing, id)
				}
				c.friends = friends
				c.publish(EventFriends, friends)
			})
		}
	}
	c.do(func() { c.publishError("refresh_friends", err) })
	return err
}

// Search debounces text. A newer call cancels the pending timer and any
// in-flight lookup, and stale results are dropped.
func (c *Coordinator) Search(text string) {
	query := strings.TrimSpace(text)
	c.post(func() {
		c.searchGen++
		gen := c.searchGen
		if c.searchTimer != nil {
			c.searchTimer.Stop()
			c.searchTimer = nil
		}
		if c.searchCancel != nil {
			c.searchCancel()
			c.searchCancel = nil
		}

		if query == "" {
			c.publish(EventSearchResults, SearchResults{Query: "", Hits: []searchDto.UserHit{}})
			return
		}
		c.searchTimer = time.AfterFunc(c.opts.Debounce, func() {
			c.post(func() { c.runSearch(gen, query) })
		})
	})
}

// runSearch runs on the loop.
func (c *Coordinator) runSearch(gen uint64, query string) {
	if gen != c.searchGen {
		return
	}
	c.searchTimer = nil

	ctx, cancel := context.WithCancel(c.ctx)
	c.searchCancel = cancel
	friends := make(map[string]struct{}, len(c.friendIDs))
	for id := range c.friendIDs {
		friends[id] = struct{}{}
	}

	go func() {
		hits, err := c.deps.Search.SearchFor(ctx, c.me, query, c.opts.SearchLimit, friends)
		c.post(func() {
			cancel()
			if gen != c.searchGen {
				return
			}
			c.searchCancel = nil
			if err != nil {
				if ctx.Err() == nil {
					c.publishError("search", err)
				}
				return
			}
			if c.reconcilePending(hits) {
				c.publishPending()
			}
			c.publish(EventSearchResults, SearchResults{Query: query, Hits: hits})
		})
	}()
}

// reconcilePending runs on the loop. The store's answer wins for every
// non-friend hit, except a uid whose send is still in flight.
func (c *Coordinator) reconcilePending(hits []searchDto.UserHit) bool {
	changed := false
	for i := range hits {
		id := hits[i].ID
		_, had := c.pendingOutgoing[id]
		switch {
		case hits[i].Friend:
			delete(c.pendingOutgoing, id)
		case c.sending[id] > 0:
			hits[i].Pending = true
			c.pendingOutgoing[id] = struct{}{}
		case hits[i].Pending:
			c.pendingOutgoing[id] = struct{}{}
		default:
			delete(c.pendingOutgoing, id)
		}
		if _, has := c.pendingOutgoing[id]; has != had {
			changed = true
		}
	}
	return changed
}

func (c *Coordinator) listen(feed *friendshipService.IncomingFeed) {
	for requests := range feed.Events() {
		if !c.post(func() { c.onIncoming(requests) }) {
			return
		}
	}
}

// onIncoming runs on the loop. The first snapshot only primes the set.
func (c *Coordinator) onIncoming(requests []entity.FriendRequest) {
	var arrived []entity.FriendRequest
	if c.incomingPrimed {
		arrived = friendshipService.NewlyArrived(c.incomingSet, requests)
	}
	c.incomingPrimed = true
	c.incomingSet = friendshipService.SenderSet(requests)
	c.incoming = requests

	for _, req := range arrived {
		name := req.FromDisplay
		if name == "" {
			name = req.FromHandle
		}
		if name == "" {
			name = "Someone"
		}
		if c.deps.Sink != nil {
			c.deps.Sink.Notify(req.FromUID, "New friend request", fmt.Sprintf("%s wants to be your friend", name))
		}
	}
	if len(arrived) > 0 {
		c.deps.Metrics.RecordIncomingNotified(len(arrived))
	}

	c.publish(EventIncoming, IncomingData{Requests: requests, Arrived: arrived})
}
