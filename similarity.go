package main

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/samber/lo"
)

const (
	similarityCacheTTL  = 5 * time.Minute
	defaultRankPageSize = 10
)

// similarityStore is the slice of storage the engine reads. Any error
// from it surfaces as ErrComputation; a partial ranking is worse than
// an explicit failure.
type similarityStore interface {
	GetUserByID(ctx context.Context, id int) (*UserRow, error)
	ListOtherUsers(ctx context.Context, excludeUserID int) ([]UserRow, error)
	FavoriteSongIDs(ctx context.Context, userID int) ([]int, error)
	FavoriteArtistIDs(ctx context.Context, userID int) ([]int, error)
	AllFavoriteSongPairs(ctx context.Context) ([]UserFavSongRow, error)
	AllFavoriteArtistPairs(ctx context.Context) ([]UserFavArtistRow, error)
	SharedSongCounts(ctx context.Context, subjectUserID, limit, offset int) ([]SongOverlapRow, error)
	CountUsersSharingSongs(ctx context.Context, subjectUserID int) (int, error)
}

// SimilarityEngine scores taste overlap between users. It carries two
// deliberately different rankings: RankBySharedSongs (paginated, raw
// common-song count) and ScoreAllUsers (unpaged, averaged Jaccard
// percentage). Both are cached under a 5-minute TTL; a cached page is
// returned unchanged even if favorites moved underneath it. Returned
// results are shared with the cache and must not be mutated.
type SimilarityEngine struct {
	store similarityStore
	cache *resultCache
}

// NewSimilarityEngine builds an engine. now is the cache clock; pass
// nil for wall time.
func NewSimilarityEngine(store similarityStore, now func() time.Time) *SimilarityEngine {
	return &SimilarityEngine{
		store: store,
		cache: newResultCache(similarityCacheTTL, now),
	}
}

func newIntSet(ids []int) mapset.Set {
	set := mapset.NewSet()
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|, with an empty union scored 0.
func jaccard(a, b mapset.Set) float64 {
	union := a.Union(b).Cardinality()
	if union == 0 {
		return 0
	}
	return float64(a.Intersect(b).Cardinality()) / float64(union)
}

// RankBySharedSongs returns one page of the users sharing at least one
// favorite song with the subject, ranked by raw shared count
// descending. A subject with no favorite songs has zero matches by
// definition, not an error.
func (e *SimilarityEngine) RankBySharedSongs(ctx context.Context, subjectUserID, page, pageSize int) (*RankedSimilarity, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultRankPageSize
	}

	key := cacheKey{UserID: subjectUserID, Page: page, PageSize: pageSize}
	if cached, ok := e.cache.get(key); ok {
		return cached.(*RankedSimilarity), nil
	}

	subject, err := e.store.GetUserByID(ctx, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}
	if subject == nil {
		return nil, fmt.Errorf("%w: unknown user %d", ErrComputation, subjectUserID)
	}

	subjectSongs, err := e.store.FavoriteSongIDs(ctx, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}

	result := &RankedSimilarity{
		CurrentUser: UserResponse{
			ID:               subject.ID,
			Name:             subject.Name,
			Email:            subject.Email,
			ListeningMinutes: subject.ListeningMinutes,
		},
		Similarities: []SharedSongMatch{},
		Pagination:   Pagination{Page: page, Limit: pageSize},
	}

	if len(subjectSongs) == 0 {
		e.cache.put(key, result)
		return result, nil
	}

	total, err := e.store.CountUsersSharingSongs(ctx, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}
	rows, err := e.store.SharedSongCounts(ctx, subjectUserID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}

	subjectSetSize := len(subjectSongs)
	result.Similarities = lo.Map(rows, func(row SongOverlapRow, _ int) SharedSongMatch {
		return SharedSongMatch{
			UserID:      row.UserID,
			UserName:    row.UserName,
			CommonSongs: row.CommonSongs,
			Similarity:  int(math.Round(100 * float64(row.CommonSongs) / float64(subjectSetSize))),
		}
	})
	result.Pagination.Total = total
	result.Pagination.TotalPages = (total + pageSize - 1) / pageSize

	e.cache.put(key, result)
	return result, nil
}

// ScoreAllUsers scores every other user against the subject with the
// symmetric Jaccard measure, averaged with equal weight over favorite
// songs and favorite artists and rounded to a whole percentage. Sorted
// by score descending, listening minutes descending, then user id so
// ties resolve the same way every time.
func (e *SimilarityEngine) ScoreAllUsers(ctx context.Context, subjectUserID int) ([]TasteScore, error) {
	key := cacheKey{UserID: subjectUserID}
	if cached, ok := e.cache.get(key); ok {
		return cached.([]TasteScore), nil
	}

	others, err := e.store.ListOtherUsers(ctx, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}

	subjectSongIDs, err := e.store.FavoriteSongIDs(ctx, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}
	subjectArtistIDs, err := e.store.FavoriteArtistIDs(ctx, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}
	subjectSongs := newIntSet(subjectSongIDs)
	subjectArtists := newIntSet(subjectArtistIDs)

	songPairs, err := e.store.AllFavoriteSongPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}
	artistPairs, err := e.store.AllFavoriteArtistPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputation, err)
	}

	songsByUser := make(map[int]mapset.Set, len(others))
	artistsByUser := make(map[int]mapset.Set, len(others))
	for _, other := range others {
		songsByUser[other.ID] = mapset.NewSet()
		artistsByUser[other.ID] = mapset.NewSet()
	}
	for _, pair := range songPairs {
		if set, ok := songsByUser[pair.UserID]; ok {
			set.Add(pair.SongID)
		}
	}
	for _, pair := range artistPairs {
		if set, ok := artistsByUser[pair.UserID]; ok {
			set.Add(pair.ArtistID)
		}
	}

	scores := make([]TasteScore, 0, len(others))
	for _, other := range others {
		songSimilarity := jaccard(subjectSongs, songsByUser[other.ID])
		artistSimilarity := jaccard(subjectArtists, artistsByUser[other.ID])
		combined := (songSimilarity + artistSimilarity) / 2

		scores = append(scores, TasteScore{
			UserID:           other.ID,
			UserName:         other.Name,
			Email:            other.Email,
			Score:            int(math.Round(combined * 100)),
			ListeningMinutes: other.ListeningMinutes,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].ListeningMinutes != scores[j].ListeningMinutes {
			return scores[i].ListeningMinutes > scores[j].ListeningMinutes
		}
		return scores[i].UserID < scores[j].UserID
	})

	e.cache.put(key, scores)
	return scores, nil
}
