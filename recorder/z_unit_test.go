package recorder

import (
	"testing"

	"github.com/zintix-labs/flipvault/money"
	"github.com/zintix-labs/flipvault/stats"
)

func TestBettorRecorderSingle(t *testing.T) {
	stake := money.MustEther("1")
	r, err := NewBettorRecorder("b0", stake, money.MustEther("5"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	two, _ := money.Double(stake)
	r.RecordSettled(stake, money.Zero(), false)
	r.RecordSettled(stake, money.Zero(), false)
	r.RecordSettled(stake, money.Zero(), false)
	r.RecordSettled(stake, two, true)
	r.RecordRejected()
	r.RecordBalance(money.MustEther("3"))
	r.RecordBalance(money.MustEther("2"))

	rep := r.Done()
	if rep.Summary.Flips != 4 || rep.Summary.Wins != 1 || rep.Summary.Losses != 3 || rep.Summary.Rejected != 1 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	if rep.Summary.TotalStakeWei != money.MustEther("4").Dec() || rep.Summary.TotalPayout != 2 {
		t.Fatalf("totals = %s / %v", rep.Summary.TotalStakeWei, rep.Summary.TotalPayout)
	}
	if rep.Summary.HousePnL != 2 {
		t.Fatalf("house pnl = %v", rep.Summary.HousePnL)
	}
	if got := rep.Streak.LossStreakCollect[stats.Streaks.Index(3)]; got != 1 {
		t.Fatalf("longest loss streak not bucketed: %v", rep.Streak.LossStreakCollect)
	}
	if rep.Bettor == nil || rep.Bettor.MinBalance != 2 || rep.Bettor.MaxBalance != 5 || rep.Bettor.Balance != 2 {
		t.Fatalf("bettor = %+v", rep.Bettor)
	}
	// Done 兩次不可重複計入分桶
	rep2 := r.Done()
	total := 0
	for _, c := range rep2.Streak.LossStreakCollect {
		total += c
	}
	if total != 1 {
		t.Fatalf("streak counted twice: %v", rep2.Streak.LossStreakCollect)
	}
}

func TestMergeBettorRecorder(t *testing.T) {
	stake := money.MustEther("0.1")
	two, _ := money.Double(stake)
	a, _ := NewBettorRecorder("sim", stake, money.MustEther("1"))
	b, _ := NewBettorRecorder("sim", stake, money.MustEther("1"))
	a.RecordSettled(stake, two, true)
	b.RecordSettled(stake, money.Zero(), false)
	b.MarkBust()
	b.MarkBust()

	m, err := MergeBettorRecorder([]*BettorRecorder{a, b})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	rep := m.Done()
	if rep.Summary.Bettors != 2 || rep.Summary.Flips != 2 || rep.Summary.Busts != 1 {
		t.Fatalf("merged summary = %+v", rep.Summary)
	}
	if rep.Bettor != nil {
		t.Fatalf("merged report must not carry a bettor block")
	}
	total := 0
	for _, c := range rep.Streak.WinStreakCollect {
		total += c
	}
	if total != 2 {
		t.Fatalf("win streak collect = %v", rep.Streak.WinStreakCollect)
	}

	c, _ := NewBettorRecorder("sim", money.MustEther("1"), nil)
	if _, err := MergeBettorRecorder([]*BettorRecorder{a, c}); err == nil {
		t.Fatalf("expected error for different stakes")
	}
	if _, err := NewBettorRecorder("x", money.Zero(), nil); err == nil {
		t.Fatalf("expected error for zero stake")
	}
}
