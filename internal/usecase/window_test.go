package usecase

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// mockWindowHost is an in-memory window system for controller tests
type mockWindowHost struct {
	mu        sync.Mutex
	next      domain.WindowHandle
	alive     map[domain.WindowHandle]bool
	mapped    map[domain.WindowHandle]bool
	policy    domain.ActivationPolicy
	creates   int
	shows     int
	hides     int
	focuses   int
	createErr error
	focusErr  error
	policyErr error
}

func newMockWindowHost() *mockWindowHost {
	return &mockWindowHost{
		alive:  make(map[domain.WindowHandle]bool),
		mapped: make(map[domain.WindowHandle]bool),
	}
}

func (m *mockWindowHost) Create(spec domain.WindowSpec) (domain.WindowHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.next++
	m.alive[m.next] = true
	m.creates++
	return m.next, nil
}

func (m *mockWindowHost) Exists(h domain.WindowHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive[h]
}

func (m *mockWindowHost) Show(h domain.WindowHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapped[h] = true
	m.shows++
	return nil
}

func (m *mockWindowHost) Focus(h domain.WindowHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focuses++
	return m.focusErr
}

func (m *mockWindowHost) Hide(h domain.WindowHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapped[h] = false
	m.hides++
	return nil
}

func (m *mockWindowHost) SetActivationPolicy(policy domain.ActivationPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.policyErr != nil {
		return m.policyErr
	}
	m.policy = policy
	return nil
}

func (m *mockWindowHost) Close() error { return nil }

func (m *mockWindowHost) destroy(h domain.WindowHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alive, h)
	delete(m.mapped, h)
}

func newTestController(t *testing.T) (*WindowControllerImpl, *mockWindowHost) {
	t.Helper()
	host := newMockWindowHost()
	c := NewWindowController(host, domain.WindowSpec{Title: "Spotlight", Width: 750, Height: 500}, domain.PolicyAccessory, zap.NewNop())
	require.NoError(t, c.Init())
	return c, host
}

func TestWindowController_InitStartsHidden(t *testing.T) {
	c, host := newTestController(t)

	assert.Equal(t, domain.WindowHidden, c.Visibility())
	assert.True(t, c.Initialized())
	assert.Equal(t, domain.PolicyAccessory, host.policy)
	assert.Zero(t, host.shows)
}

func TestWindowController_InitIsIdempotent(t *testing.T) {
	c, host := newTestController(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Init())
	}

	assert.Equal(t, 1, host.creates)
}

func TestWindowController_InitKeepsVisibility(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Show())

	require.NoError(t, c.Init())

	assert.Equal(t, domain.WindowVisible, c.Visibility())
}

func TestWindowController_ShowFocusesAndRepeatsAreNoOps(t *testing.T) {
	c, host := newTestController(t)

	require.NoError(t, c.Show())
	require.NoError(t, c.Show())

	assert.Equal(t, domain.WindowVisible, c.Visibility())
	assert.Equal(t, 1, host.shows)
	assert.Equal(t, 1, host.focuses)
}

func TestWindowController_HideKeepsWindowAllocated(t *testing.T) {
	c, host := newTestController(t)
	require.NoError(t, c.Show())

	require.NoError(t, c.Hide())
	require.NoError(t, c.Hide())

	assert.Equal(t, domain.WindowHidden, c.Visibility())
	assert.Equal(t, 1, host.hides)
	assert.Equal(t, 1, host.creates)
	assert.Len(t, host.alive, 1)
}

func TestWindowController_Toggle(t *testing.T) {
	c, _ := newTestController(t)

	require.NoError(t, c.Toggle())
	assert.Equal(t, domain.WindowVisible, c.Visibility())

	require.NoError(t, c.Toggle())
	assert.Equal(t, domain.WindowHidden, c.Visibility())
}

// TestWindowController_FoldOfTransitions checks random call sequences
// against the two-state transition rules
func TestWindowController_FoldOfTransitions(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		c, _ := newTestController(t)
		want := domain.WindowHidden

		for step := 0; step < 40; step++ {
			switch rng.Intn(3) {
			case 0:
				require.NoError(t, c.Show())
				want = domain.WindowVisible
			case 1:
				require.NoError(t, c.Hide())
				want = domain.WindowHidden
			case 2:
				require.NoError(t, c.Toggle())
				if want == domain.WindowVisible {
					want = domain.WindowHidden
				} else {
					want = domain.WindowVisible
				}
			}
			require.Equal(t, want, c.Visibility(), "run %d step %d", run, step)
		}
	}
}

func TestWindowController_BeforeInit(t *testing.T) {
	host := newMockWindowHost()
	c := NewWindowController(host, domain.WindowSpec{}, domain.PolicyAccessory, zap.NewNop())

	for _, op := range []func() error{c.Show, c.Hide, c.Toggle} {
		err := op()
		assert.ErrorIs(t, err, domain.ErrWindowNotInitialized)
		assert.ErrorIs(t, err, domain.ErrWindowUnavailable)
	}
	assert.False(t, c.Initialized())
}

func TestWindowController_UnavailableThenRecover(t *testing.T) {
	c, host := newTestController(t)
	require.NoError(t, c.Show())

	host.destroy(c.handle)

	assert.ErrorIs(t, c.Hide(), domain.ErrWindowUnavailable)
	assert.ErrorIs(t, c.Show(), domain.ErrWindowUnavailable)
	assert.ErrorIs(t, c.Toggle(), domain.ErrWindowUnavailable)

	require.NoError(t, c.Init())
	assert.Equal(t, 2, host.creates)
	assert.Equal(t, domain.WindowHidden, c.Visibility(), "new window starts hidden")

	require.NoError(t, c.Show())
	assert.Equal(t, domain.WindowVisible, c.Visibility())
}

func TestWindowController_CreateFailure(t *testing.T) {
	host := newMockWindowHost()
	host.createErr = errors.New("no display")
	c := NewWindowController(host, domain.WindowSpec{}, domain.PolicyAccessory, zap.NewNop())

	err := c.Init()

	assert.ErrorIs(t, err, domain.ErrWindowUnavailable)
	assert.False(t, c.Initialized())
}

func TestWindowController_FocusFailureStillVisible(t *testing.T) {
	c, host := newTestController(t)
	host.focusErr = errors.New("focus stolen")

	require.NoError(t, c.Show())

	assert.Equal(t, domain.WindowVisible, c.Visibility())
}

func TestWindowController_PolicyFailureIsNotFatal(t *testing.T) {
	host := newMockWindowHost()
	host.policyErr = errors.New("unsupported")
	c := NewWindowController(host, domain.WindowSpec{}, domain.PolicyAccessory, zap.NewNop())

	require.NoError(t, c.Init())
	require.NoError(t, c.Show())
}

func TestWindowController_ConcurrentToggles(t *testing.T) {
	c, host := newTestController(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Toggle()
		}()
	}
	wg.Wait()

	// An even number of toggles lands back on Hidden
	assert.Equal(t, domain.WindowHidden, c.Visibility())
	assert.Equal(t, 50, host.shows)
	assert.Equal(t, 50, host.hides)
}
