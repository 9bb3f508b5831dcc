package workflow

import (
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the intended concurrency semantics:
// - a request is assigned to exactly one agent, however many submissions race
// - a lead is sold to exactly one buyer, however many purchases race
//
// Full DB integration tests run separately (INTEGRATION_TESTS=1, requires docker).

// fakeRequestStore mimics the conditional UPDATE used by the real
// assignment path: flip succeeds only while the row is still unassigned.
type fakeRequestStore struct {
	mu       sync.Mutex
	assigned map[int]int // requestId -> agentId
	sold     map[int]int // leadId -> buyerAgentId
	wallets  map[int]int
	receipts int
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{
		assigned: map[int]int{},
		sold:     map[int]int{},
		wallets:  map[int]int{},
	}
}

// tryAssign is the CAS: UPDATE ... WHERE status = 'open' AND assigned_agent_id IS NULL.
func (s *fakeRequestStore) tryAssign(requestId, agentId int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.assigned[requestId]; taken {
		return false
	}
	s.assigned[requestId] = agentId
	return true
}

// tryPurchase is the sale CAS plus the guarded wallet debit, all-or-nothing.
func (s *fakeRequestStore) tryPurchase(leadId, buyerId, price int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sold[leadId]; taken {
		return false
	}
	if s.wallets[buyerId] < price {
		return false
	}
	s.sold[leadId] = buyerId
	s.wallets[buyerId] -= price
	s.receipts++
	return true
}

func TestRacingAssignments_ExactlyOneWinner(t *testing.T) {
	for run := 0; run < 100; run++ {
		s := newFakeRequestStore()

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for agent := 1; agent <= 25; agent++ {
			wg.Add(1)
			go func(agent int) {
				defer wg.Done()
				if s.tryAssign(1, agent) {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(agent)
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("run=%d expected exactly 1 winning assignment, got %d", run, wins)
		}
		if _, ok := s.assigned[1]; !ok {
			t.Fatalf("run=%d request ended unassigned", run)
		}
	}
}

func TestRacingPurchases_ExactlyOneSale(t *testing.T) {
	for run := 0; run < 100; run++ {
		s := newFakeRequestStore()
		for buyer := 1; buyer <= 25; buyer++ {
			s.wallets[buyer] = 100
		}

		var wg sync.WaitGroup
		for buyer := 1; buyer <= 25; buyer++ {
			wg.Add(1)
			go func(buyer int) {
				defer wg.Done()
				s.tryPurchase(7, buyer, 50)
			}(buyer)
		}
		wg.Wait()

		if s.receipts != 1 {
			t.Fatalf("run=%d expected exactly 1 receipt, got %d", run, s.receipts)
		}
		winner := s.sold[7]
		if winner == 0 {
			t.Fatalf("run=%d lead ended unsold", run)
		}
		// Exactly one wallet was debited.
		debited := 0
		for buyer := 1; buyer <= 25; buyer++ {
			switch s.wallets[buyer] {
			case 50:
				debited++
				if buyer != winner {
					t.Fatalf("run=%d non-winner %d was debited", run, buyer)
				}
			case 100:
			default:
				t.Fatalf("run=%d wallet of buyer %d has unexpected balance %d", run, buyer, s.wallets[buyer])
			}
		}
		if debited != 1 {
			t.Fatalf("run=%d expected exactly 1 debit, got %d", run, debited)
		}
	}
}

func TestPurchase_InsufficientBalanceNeverSells(t *testing.T) {
	s := newFakeRequestStore()
	s.wallets[1] = 10

	if s.tryPurchase(7, 1, 50) {
		t.Fatalf("purchase succeeded with insufficient balance")
	}
	if s.receipts != 0 {
		t.Fatalf("receipt written without a sale")
	}
	if s.wallets[1] != 10 {
		t.Fatalf("wallet debited without a sale: %d", s.wallets[1])
	}
}
