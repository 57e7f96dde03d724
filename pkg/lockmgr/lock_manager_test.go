package lockmgr

import (
	"sync"
	"testing"
	"time"
)

const rid ResourceID = 1

func TestLockManager_SharedLocksAreCompatible(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)

	if ok, err := lm.LockShared(t1, rid); !ok || err != nil {
		t.Fatalf("t1 shared lock: ok=%v err=%v", ok, err)
	}
	if ok, err := lm.LockShared(t2, rid); !ok || err != nil {
		t.Fatalf("t2 shared lock: ok=%v err=%v", ok, err)
	}
}

func TestLockManager_ExclusiveBlocksUntilReleased(t *testing.T) {
	lm := NewLockManager()
	older := NewTransaction(1, RepeatableRead)
	younger := NewTransaction(2, RepeatableRead)

	if ok, err := lm.LockExclusive(older, rid); !ok || err != nil {
		t.Fatalf("older exclusive lock: ok=%v err=%v", ok, err)
	}

	done := make(chan struct{})
	go func() {
		ok, err := lm.LockExclusive(younger, rid)
		if !ok || err != nil {
			t.Errorf("younger exclusive lock: ok=%v err=%v", ok, err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("younger transaction should not have been granted the lock yet")
	case <-time.After(50 * time.Millisecond):
	}

	lm.Unlock(older, rid)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("younger transaction never got the lock after release")
	}
}

// TestLockManager_WoundWait_OlderWoundsYoungerHolder implements the spec's
// wound-wait scenario: a younger transaction holds the exclusive lock, an
// older transaction requests it and wounds the holder instead of waiting.
func TestLockManager_WoundWait_OlderWoundsYoungerHolder(t *testing.T) {
	lm := NewLockManager()
	young := NewTransaction(5, RepeatableRead)
	old := NewTransaction(1, RepeatableRead)

	if ok, err := lm.LockExclusive(young, rid); !ok || err != nil {
		t.Fatalf("young exclusive lock: ok=%v err=%v", ok, err)
	}

	done := make(chan struct{})
	go func() {
		ok, err := lm.LockExclusive(old, rid)
		if !ok || err != nil {
			t.Errorf("old exclusive lock: ok=%v err=%v", ok, err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("old transaction never acquired the lock after wounding young")
	}

	if young.state() != TxnAborted {
		t.Fatalf("expected younger holder to be wounded (aborted), got state %v", young.state())
	}
}

func TestLockManager_WoundWait_YoungerWaitsForOlderHolder(t *testing.T) {
	lm := NewLockManager()
	old := NewTransaction(1, RepeatableRead)
	young := NewTransaction(9, RepeatableRead)

	if ok, err := lm.LockExclusive(old, rid); !ok || err != nil {
		t.Fatalf("old exclusive lock: ok=%v err=%v", ok, err)
	}

	result := make(chan bool, 1)
	go func() {
		ok, err := lm.LockExclusive(young, rid)
		result <- ok && err == nil
	}()

	select {
	case <-result:
		t.Fatalf("younger transaction should not be granted while older holds the lock")
	case <-time.After(50 * time.Millisecond):
	}
	if old.state() == TxnAborted {
		t.Fatalf("older holder must not be wounded by a younger requester")
	}

	lm.Unlock(old, rid)

	select {
	case ok := <-result:
		if !ok {
			t.Fatalf("younger transaction should acquire lock once older releases")
		}
	case <-time.After(time.Second):
		t.Fatalf("younger transaction never acquired the lock")
	}
}

func TestLockManager_UpgradeSucceedsWhenSoleHolder(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(1, RepeatableRead)

	if ok, _ := lm.LockShared(txn, rid); !ok {
		t.Fatalf("expected shared lock to be granted")
	}
	if ok, err := lm.LockUpgrade(txn, rid); !ok || err != nil {
		t.Fatalf("upgrade: ok=%v err=%v", ok, err)
	}
	if _, held := txn.ExclSet[rid]; !held {
		t.Fatalf("expected resource to move into the exclusive set")
	}
	if _, held := txn.SharedSet[rid]; held {
		t.Fatalf("expected resource to leave the shared set")
	}
}

func TestLockManager_UpgradeConflictWhenTwoInFlight(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)

	lm.LockShared(t1, rid)
	lm.LockShared(t2, rid)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	// t2 upgrades first and waits on t1's shared lock; t1's upgrade then
	// finds t2's still in flight and is rejected. Were t1 (the older) to go
	// first, it would simply wound t2 and no conflict would arise.
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		_, results[0] = lm.LockUpgrade(t1, rid)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = lm.LockUpgrade(t2, rid)
	}()
	wg.Wait()

	conflicts := 0
	for _, err := range results {
		if err == ErrUpgradeConflict {
			conflicts++
		}
	}
	if conflicts == 0 {
		t.Fatalf("expected at least one upgrade to be rejected with ErrUpgradeConflict, got %v", results)
	}
}

func TestLockManager_UnlockUnderRepeatableReadEntersShrinking(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(1, RepeatableRead)

	lm.LockShared(txn, rid)
	lm.Unlock(txn, rid)

	if txn.state() != TxnShrinking {
		t.Fatalf("expected RepeatableRead unlock to enter Shrinking, got %v", txn.state())
	}
}

func TestLockManager_UnlockUnderReadCommittedStaysGrowing(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(1, ReadCommitted)

	lm.LockShared(txn, rid)
	lm.Unlock(txn, rid)

	if txn.state() != TxnGrowing {
		t.Fatalf("expected ReadCommitted unlock to stay Growing, got %v", txn.state())
	}

	if ok, err := lm.LockShared(txn, ResourceID(2)); !ok || err != nil {
		t.Fatalf("expected ReadCommitted txn to reacquire shared locks after unlocking: ok=%v err=%v", ok, err)
	}
}

func TestLockManager_ReadUncommittedRejectsSharedLock(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(1, ReadUncommitted)

	ok, err := lm.LockShared(txn, rid)
	if ok || err != ErrLockSharedOnReadUncommitted {
		t.Fatalf("expected ErrLockSharedOnReadUncommitted, got ok=%v err=%v", ok, err)
	}
	if txn.state() != TxnAborted {
		t.Fatalf("expected transaction to be aborted, got %v", txn.state())
	}
}

func TestLockManager_LockOnShrinkingIsRejected(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(1, RepeatableRead)

	lm.LockShared(txn, rid)
	lm.Unlock(txn, rid) // -> Shrinking

	ok, err := lm.LockExclusive(txn, ResourceID(2))
	if ok || err != ErrLockOnShrinking {
		t.Fatalf("expected ErrLockOnShrinking, got ok=%v err=%v", ok, err)
	}
	if txn.state() != TxnAborted {
		t.Fatalf("expected transaction to be aborted, got %v", txn.state())
	}
}

func TestLockManager_AlreadyAbortedReturnsFalseWithoutError(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(1, RepeatableRead)
	txn.setState(TxnAborted)

	ok, err := lm.LockShared(txn, rid)
	if ok || err != nil {
		t.Fatalf("expected (false, nil) for an already-aborted transaction, got ok=%v err=%v", ok, err)
	}
}

// TestLockManager_ExclusiveNotifiesWaitersOnWound guards the fix where
// lock_exclusive must notify_all any time a wound happens or the queue
// head changes: three transactions queue for an exclusive lock, the
// oldest wounds everyone ahead of it, and every waiter must wake up
// instead of one being left sleeping forever.
func TestLockManager_ExclusiveNotifiesWaitersOnWound(t *testing.T) {
	lm := NewLockManager()
	holder := NewTransaction(10, RepeatableRead)
	waiter := NewTransaction(20, RepeatableRead)
	oldest := NewTransaction(1, RepeatableRead)

	if ok, err := lm.LockExclusive(holder, rid); !ok || err != nil {
		t.Fatalf("holder exclusive lock: ok=%v err=%v", ok, err)
	}

	waiterDone := make(chan bool, 1)
	go func() {
		ok, err := lm.LockExclusive(waiter, rid)
		waiterDone <- ok && err == nil
	}()

	// Give the waiter time to enqueue behind holder before oldest arrives.
	time.Sleep(30 * time.Millisecond)

	oldestDone := make(chan bool, 1)
	go func() {
		ok, err := lm.LockExclusive(oldest, rid)
		oldestDone <- ok && err == nil
	}()

	select {
	case ok := <-oldestDone:
		if !ok {
			t.Fatalf("oldest transaction should acquire the lock after wounding both ahead of it")
		}
	case <-time.After(time.Second):
		t.Fatalf("oldest transaction never acquired the lock; a wound failed to notify waiters")
	}

	select {
	case ok := <-waiterDone:
		if ok {
			t.Fatalf("wounded waiter should not have been granted the lock")
		}
	case <-time.After(time.Second):
		t.Fatalf("wounded waiter never woke up; wound did not notify_all")
	}

	if holder.state() != TxnAborted || waiter.state() != TxnAborted {
		t.Fatalf("expected both younger transactions wounded, got holder=%v waiter=%v", holder.state(), waiter.state())
	}
}
