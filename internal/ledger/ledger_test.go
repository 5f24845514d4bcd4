package ledger

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/premium-ledger/internal/model"
)

type voteKey struct {
	userID  int64
	issueID int64
}

type memStore struct {
	users    map[int64]*model.User
	votes    map[voteKey]int64
	spendErr error
	allCalls int
	// afterAll вызывается после подсчёта сумм, до возврата результата
	afterAll func()
}

func newMemStore(users ...*model.User) *memStore {
	s := &memStore{users: map[int64]*model.User{}, votes: map[voteKey]int64{}}
	for _, u := range users {
		cp := *u
		s.users[u.ID] = &cp
	}
	return s
}

func (s *memStore) CreditUser(ctx context.Context, userID int64, funds decimal.Decimal, votes int64) error {
	u, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.VotesFree += votes
	u.FundsTotal = u.FundsTotal.Add(funds)
	u.FundsCount++
	return nil
}

func (s *memStore) SpendVotes(ctx context.Context, userID, issueID, count int64) error {
	if s.spendErr != nil {
		return s.spendErr
	}
	u := s.users[userID]
	if u.VotesFree < count {
		return model.ErrVoteRace
	}
	u.VotesFree -= count
	s.votes[voteKey{userID, issueID}] += count
	return nil
}

func (s *memStore) GetUserVotes(ctx context.Context, userID int64) ([]model.Vote, error) {
	var res []model.Vote
	for k, v := range s.votes {
		if k.userID == userID {
			res = append(res, model.Vote{UserID: userID, IssueID: k.issueID, VoteCount: v})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].VoteCount > res[j].VoteCount })
	return res, nil
}

func (s *memStore) GetAllVotes(ctx context.Context, limit int) ([]model.IssueVotes, error) {
	s.allCalls++
	totals := map[int64]int64{}
	for k, v := range s.votes {
		totals[k.issueID] += v
	}
	var res []model.IssueVotes
	for issue, total := range totals {
		if total != 0 {
			res = append(res, model.IssueVotes{IssueID: issue, VoteCount: total})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].VoteCount > res[j].VoteCount })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	if s.afterAll != nil {
		s.afterAll()
	}
	return res, nil
}

type stubCache struct {
	votes       []model.IssueVotes
	ok          bool
	invalidated int
}

func (c *stubCache) GetAllVotes(ctx context.Context) ([]model.IssueVotes, bool, error) {
	return c.votes, c.ok, nil
}

func (c *stubCache) SetAllVotes(ctx context.Context, votes []model.IssueVotes) error {
	c.votes, c.ok = votes, true
	return nil
}

func (c *stubCache) Invalidate(ctx context.Context) error {
	c.votes, c.ok = nil, false
	c.invalidated++
	return nil
}

func newTestLedger(t *testing.T, store Store, opts ...Option) *Ledger {
	t.Helper()
	l, err := New(store, decimal.NewFromInt(5), opts...)
	require.NoError(t, err)
	return l
}

func TestNew_RejectsNonPositiveVoteCost(t *testing.T) {
	_, err := New(newMemStore(), decimal.Zero)
	require.Error(t, err)
}

func TestVotesForFunds_Floors(t *testing.T) {
	l := newTestLedger(t, newMemStore())

	tests := []struct {
		funds string
		want  int64
	}{
		{"50", 10},
		{"49.99", 9},
		{"4.99", 0},
		{"0.01", 0},
		{"12.5", 2},
		{"0", 0},
		{"-10", 0},
	}

	for _, tt := range tests {
		t.Run(tt.funds, func(t *testing.T) {
			assert.Equal(t, tt.want, l.VotesForFunds(decimal.RequireFromString(tt.funds)))
		})
	}
}

func TestAssignVotesFromFunds(t *testing.T) {
	store := newMemStore(&model.User{ID: 1})
	l := newTestLedger(t, store)

	votes, err := l.AssignVotesFromFunds(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.EqualValues(t, 10, votes)

	u := store.users[1]
	assert.EqualValues(t, 10, u.VotesFree)
	assert.EqualValues(t, 1, u.FundsCount)
	assert.True(t, u.FundsTotal.Equal(decimal.NewFromInt(50)))
}

func TestAssignVotesFromFunds_SmallAmountStillFlipsPremium(t *testing.T) {
	store := newMemStore(&model.User{ID: 1})
	l := newTestLedger(t, store)

	require.False(t, store.users[1].IsPremium())

	votes, err := l.AssignVotesFromFunds(context.Background(), 1, decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Zero(t, votes)
	assert.True(t, store.users[1].IsPremium())
}

func TestAssignVotesFromFunds_RejectsNonPositive(t *testing.T) {
	store := newMemStore(&model.User{ID: 1})
	l := newTestLedger(t, store)

	_, err := l.AssignVotesFromFunds(context.Background(), 1, decimal.Zero)
	assert.True(t, model.IsValidation(err))
	assert.Zero(t, store.users[1].FundsCount)
}

func TestAssignVotesFromFunds_UnknownUser(t *testing.T) {
	l := newTestLedger(t, newMemStore())

	_, err := l.AssignVotesFromFunds(context.Background(), 99, decimal.NewFromInt(10))
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestVote_ClampsToBalance(t *testing.T) {
	store := newMemStore(&model.User{ID: 1})
	l := newTestLedger(t, store)
	ctx := context.Background()

	_, err := l.AssignVotesFromFunds(ctx, 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	user := *store.users[1]
	spent, err := l.Vote(ctx, &user, 42, 15)
	require.NoError(t, err)
	assert.EqualValues(t, 10, spent)
	assert.Zero(t, user.VotesFree)
	assert.Zero(t, store.users[1].VotesFree)
	assert.EqualValues(t, 10, store.votes[voteKey{1, 42}])
}

func TestVote_ZeroBalanceIsNoop(t *testing.T) {
	store := newMemStore(&model.User{ID: 1})
	l := newTestLedger(t, store)

	user := *store.users[1]
	spent, err := l.Vote(context.Background(), &user, 42, 3)
	require.ErrorIs(t, err, model.ErrNoFreeVotes)
	assert.Zero(t, spent)
	assert.Empty(t, store.votes)
}

func TestVote_SecondCallSeesReducedBalance(t *testing.T) {
	store := newMemStore(&model.User{ID: 1, VotesFree: 5})
	l := newTestLedger(t, store)
	ctx := context.Background()

	user := *store.users[1]
	spent, err := l.Vote(ctx, &user, 1, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, spent)

	spent, err = l.Vote(ctx, &user, 2, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, spent)

	_, err = l.Vote(ctx, &user, 3, 1)
	require.ErrorIs(t, err, model.ErrNoFreeVotes)
}

func TestVote_StoreErrorKeepsBalance(t *testing.T) {
	store := newMemStore(&model.User{ID: 1, VotesFree: 5})
	store.spendErr = errors.New("connection reset by peer")
	l := newTestLedger(t, store)

	user := *store.users[1]
	_, err := l.Vote(context.Background(), &user, 1, 3)
	require.ErrorIs(t, err, store.spendErr)
	assert.EqualValues(t, 5, user.VotesFree)
}

func TestBalanceMatchesCreditsMinusSpends(t *testing.T) {
	store := newMemStore(&model.User{ID: 1})
	l := newTestLedger(t, store)
	ctx := context.Background()
	user := *store.users[1]

	ops := []struct {
		credit  string
		vote    int64
		balance int64
	}{
		{credit: "12", balance: 2},
		{vote: 5, balance: 0},
		{credit: "27.5", balance: 5},
		{vote: 1, balance: 4},
		{vote: 4, balance: 0},
		{credit: "5", balance: 1},
	}

	for i, op := range ops {
		if op.credit != "" {
			_, err := l.AssignVotesFromFunds(ctx, 1, decimal.RequireFromString(op.credit))
			require.NoError(t, err)
			user.VotesFree = store.users[1].VotesFree
		} else {
			_, err := l.Vote(ctx, &user, int64(i), op.vote)
			require.NoError(t, err)
		}
		assert.Equal(t, op.balance, store.users[1].VotesFree, "step %d", i)
		assert.Equal(t, op.balance, user.VotesFree, "step %d", i)
	}
}

func TestGetAllVotes_UsesCache(t *testing.T) {
	store := newMemStore(&model.User{ID: 1, VotesFree: 10}, &model.User{ID: 2, VotesFree: 10})
	cache := &stubCache{}
	l := newTestLedger(t, store, WithCache(cache))
	ctx := context.Background()

	u1, u2 := *store.users[1], *store.users[2]
	_, err := l.Vote(ctx, &u1, 7, 4)
	require.NoError(t, err)
	_, err = l.Vote(ctx, &u2, 7, 2)
	require.NoError(t, err)
	_, err = l.Vote(ctx, &u2, 8, 3)
	require.NoError(t, err)

	votes, err := l.GetAllVotes(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.IssueVotes{{IssueID: 7, VoteCount: 6}}, votes)

	votes, err = l.GetAllVotes(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, votes, 2)
	assert.Equal(t, 1, store.allCalls)

	_, err = l.Vote(ctx, &u1, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, cache.invalidated)

	_, err = l.GetAllVotes(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, store.allCalls)
}

func TestGetAllVotes_VoteDuringReadDropsCachedTotals(t *testing.T) {
	store := newMemStore(&model.User{ID: 1, VotesFree: 10})
	cache := &stubCache{}
	l := newTestLedger(t, store, WithCache(cache))
	ctx := context.Background()

	u := *store.users[1]
	_, err := l.Vote(ctx, &u, 7, 2)
	require.NoError(t, err)

	store.afterAll = func() {
		store.afterAll = nil
		_, err := l.Vote(ctx, &u, 7, 3)
		require.NoError(t, err)
	}

	votes, err := l.GetAllVotes(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []model.IssueVotes{{IssueID: 7, VoteCount: 2}}, votes)
	assert.False(t, cache.ok, "totals read before the vote must not stay cached")

	votes, err = l.GetAllVotes(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []model.IssueVotes{{IssueID: 7, VoteCount: 5}}, votes)
}

func TestGetUserVotes_OrderedByCount(t *testing.T) {
	store := newMemStore(&model.User{ID: 1, VotesFree: 10})
	l := newTestLedger(t, store)
	ctx := context.Background()

	u := *store.users[1]
	_, err := l.Vote(ctx, &u, 1, 2)
	require.NoError(t, err)
	_, err = l.Vote(ctx, &u, 2, 5)
	require.NoError(t, err)

	votes, err := l.GetUserVotes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.EqualValues(t, 2, votes[0].IssueID)
	assert.EqualValues(t, 5, votes[0].VoteCount)
}
