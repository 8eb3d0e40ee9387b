package learning

import (
	"math/rand"
	"sync"

	"github.com/BaSui01/memflow/types"
)

// Gamma is the fixed discount factor for Q-value updates.
const Gamma = 0.9

// QTable holds the state/action value estimates for one agent profile.
// Reads (action selection) take the shared lock; writes (policy updates)
// take the exclusive lock.
type QTable struct {
	mu     sync.RWMutex
	values map[string]map[string]float64
}

// NewQTable creates an empty table.
func NewQTable() *QTable {
	return &QTable{
		values: make(map[string]map[string]float64),
	}
}

// Get returns the stored value for (state, action) and whether one exists.
func (q *QTable) Get(state, action string) (float64, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	actions, ok := q.values[state]
	if !ok {
		return 0, false
	}
	v, ok := actions[action]
	return v, ok
}

// Max returns the highest value among the state's known actions, 0 when the
// state is unseen.
func (q *QTable) Max(state string) float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.maxLocked(state)
}

func (q *QTable) maxLocked(state string) float64 {
	best := 0.0
	first := true
	for _, v := range q.values[state] {
		if first || v > best {
			best = v
			first = false
		}
	}
	return best
}

// Update applies the standard temporal-difference rule
//
//	Q(s,a) <- Q(s,a) + alpha * (reward + gamma*max_a' Q(s',a') - Q(s,a))
//
// and returns the new value.
func (q *QTable) Update(state, action string, reward float64, nextState string, alpha float64) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions, ok := q.values[state]
	if !ok {
		actions = make(map[string]float64)
		q.values[state] = actions
	}

	current := actions[action]
	next := q.maxLocked(nextState)
	updated := current + alpha*(reward+Gamma*next-current)
	actions[action] = updated
	return updated
}

// SelectAction picks an action epsilon-greedily: with probability epsilon a
// uniform random action (confidence 0.5), otherwise the highest-valued
// action with confidence normalized into [0.5, 1.0].
func (q *QTable) SelectAction(state string, actions []string, epsilon float64) (types.ActionChoice, error) {
	if len(actions) == 0 {
		return types.ActionChoice{}, types.NewError(types.ErrValidation, "no actions to select from")
	}

	// The global rand source is goroutine-safe, so exploration draws do
	// not need the table's write lock.
	q.mu.RLock()
	if rand.Float64() < epsilon {
		action := actions[rand.Intn(len(actions))]
		value := q.values[state][action]
		q.mu.RUnlock()
		return types.ActionChoice{
			Action:     action,
			QValue:     value,
			Confidence: 0.5,
			Explored:   true,
		}, nil
	}

	best := actions[0]
	bestValue := q.values[state][best]
	for _, a := range actions[1:] {
		if v := q.values[state][a]; v > bestValue {
			best = a
			bestValue = v
		}
	}
	q.mu.RUnlock()

	confidence := 0.5 + 0.5*bestValue/(1+abs(bestValue))
	return types.ActionChoice{
		Action:     best,
		QValue:     bestValue,
		Confidence: confidence,
	}, nil
}

// Snapshot returns a deep copy of all values, for export and statistics.
func (q *QTable) Snapshot() map[string]map[string]float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make(map[string]map[string]float64, len(q.values))
	for state, actions := range q.values {
		sa := make(map[string]float64, len(actions))
		for a, v := range actions {
			sa[a] = v
		}
		out[state] = sa
	}
	return out
}

// Len returns the number of known states.
func (q *QTable) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.values)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
