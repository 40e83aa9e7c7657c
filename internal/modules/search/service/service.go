package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"anoa.com/drawsocial/internal/entity"
	profileRepo "anoa.com/drawsocial/internal/modules/profile/repository"
	searchDto "anoa.com/drawsocial/internal/modules/search/dto"
	"anoa.com/drawsocial/internal/modules/search/index"
	"anoa.com/drawsocial/pkg/apperror"
	"anoa.com/drawsocial/pkg/storage"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"
)

const reindexPageSize = 200

// PendingChecker reports open friend requests.
type PendingChecker interface {
	HasPending(ctx context.Context, from, to string) (bool, error)
}

type SearchService interface {
	SearchUsers(ctx context.Context, query string, limit int) ([]searchDto.UserDoc, error)
	// SearchFor runs SearchUsers for me, drops me from the hits and marks
	// friends and pending requests. Pending checks run concurrently.
	SearchFor(ctx context.Context, me, query string, limit int, friends map[string]struct{}) ([]searchDto.UserHit, error)
	IndexUsers(ctx context.Context, users []entity.User) error
	ReindexAll(ctx context.Context) (int, error)
}

type searchService struct {
	index        index.UserIndex
	users        profileRepo.UserRepository
	pending      PendingChecker
	avatars      storage.AvatarResolver
	sanitizer    *bluemonday.Policy
	defaultLimit int
	concurrency  int
	logger       *slog.Logger
}

func NewSearchService(idx index.UserIndex, users profileRepo.UserRepository, pending PendingChecker, avatars storage.AvatarResolver, defaultLimit, concurrency int, logger *slog.Logger) SearchService {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &searchService{
		index:        idx,
		users:        users,
		pending:      pending,
		avatars:      avatars,
		sanitizer:    bluemonday.StrictPolicy(),
		defaultLimit: defaultLimit,
		concurrency:  concurrency,
		logger:       logger,
	}
}

func (s *searchService) SearchUsers(ctx context.Context, query string, limit int) ([]searchDto.UserDoc, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []searchDto.UserDoc{}, nil
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	docs, err := s.index.Search(ctx, query, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", apperror.ErrNetwork, err)
	}
	return docs, nil
}

func (s *searchService) SearchFor(ctx context.Context, me, query string, limit int, friends map[string]struct{}) ([]searchDto.UserHit, error) {
	if me == "" {
		return nil, apperror.ErrNotAuthenticated
	}
	docs, err := s.SearchUsers(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]searchDto.UserHit, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == me {
			continue
		}
		_, friend := friends[doc.ID]
		hits = append(hits, searchDto.UserHit{UserDoc: doc, Friend: friend})
	}

	if s.pending == nil {
		return hits, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range hits {
		if hits[i].Friend {
			continue
		}
		g.Go(func() error {
			pending, err := s.pending.HasPending(gctx, me, hits[i].ID)
			if err != nil {
				return err
			}
			hits[i].Pending = pending
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hits, nil
}

func (s *searchService) IndexUsers(ctx context.Context, users []entity.User) error {
	docs := make([]searchDto.UserDoc, 0, len(users))
	for _, u := range users {
		docs = append(docs, s.docFor(u))
	}
	return s.index.Upsert(ctx, docs)
}

// ReindexAll pages through every user and upserts them.
func (s *searchService) ReindexAll(ctx context.Context) (int, error) {
	total := 0
	for offset := 0; ; offset += reindexPageSize {
		users, err := s.users.FindAll(ctx, reindexPageSize, offset)
		if err != nil {
			return total, err
		}
		if len(users) == 0 {
			break
		}
		if err := s.IndexUsers(ctx, users); err != nil {
			return total, err
		}
		total += len(users)
		if len(users) < reindexPageSize {
			break
		}
	}
	s.logger.Info("users reindexed", slog.Int("count", total))
	return total, nil
}

func (s *searchService) docFor(u entity.User) searchDto.UserDoc {
	doc := searchDto.UserDoc{
		ID:     u.ID,
		Handle: s.clean(u.Handle),
	}
	if u.Profile != nil {
		doc.DisplayName = s.clean(u.Profile.DisplayName)
		doc.FullName = s.clean(u.Profile.FullName())
	}
	if s.avatars != nil && u.AvatarPublicID != nil && *u.AvatarPublicID != "" {
		if url, err := s.avatars.AvatarURL(*u.AvatarPublicID); err == nil {
			doc.AvatarURL = url
		}
	}
	return doc
}

func (s *searchService) clean(text string) string {
	sanitized := s.sanitizer.Sanitize(text)
	cleanText := html.UnescapeString(sanitized)
	return strings.Join(strings.Fields(cleanText), " ")
}

// ReindexAgent rebuilds the users index on a schedule.
type ReindexAgent struct {
	service  SearchService
	schedule string
}

func NewReindexAgent(service SearchService, schedule string) *ReindexAgent {
	return &ReindexAgent{service: service, schedule: schedule}
}

func (a *ReindexAgent) GetName() string     { return "search-reindex" }
func (a *ReindexAgent) GetSchedule() string { return a.schedule }

func (a *ReindexAgent) Execute(ctx context.Context) error {
	_, err := a.service.ReindexAll(ctx)
	return err
}
