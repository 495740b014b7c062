/*
balance.go - Balance chain derivation

PURPOSE:
  The current balance is never stored on the account. It is read from
  the ordered movement log: the tail movement's AvailableBalance, or the
  account's InitialBalance when the log is empty.

REPLAY vs TAIL:
  Append trusts the tail (each movement recorded its balance when it was
  written). Replay folds Value over the log from the baseline, which is
  what the balances WOULD be if every movement were recomputed. The two
  agree until a non-final movement is updated or deleted; Audit reports
  where they diverge.

SEE ALSO:
  - engine.go: CurrentBalance and Audit
*/
package ledger

import "github.com/shopspring/decimal"

// TailBalance returns the recorded balance of the last movement in
// ordered, or initial when ordered is empty.
func TailBalance(initial decimal.Decimal, ordered []Movement) decimal.Decimal {
	if len(ordered) == 0 {
		return initial
	}
	return ordered[len(ordered)-1].AvailableBalance
}

// Replay folds the ordered log from initial and returns the balance after
// each movement.
func Replay(initial decimal.Decimal, ordered []Movement) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ordered))
	balance := initial
	for i, m := range ordered {
		balance = m.Kind.Apply(balance, m.Value)
		out[i] = balance
	}
	return out
}

// ChainBreak is a movement whose recorded balance differs from replay.
type ChainBreak struct {
	Movement Movement
	Recorded decimal.Decimal
	Expected decimal.Decimal
}

// AuditReport summarizes a replay of one account's chain.
type AuditReport struct {
	AccountID      AccountID
	InitialBalance decimal.Decimal
	Movements      int
	TailBalance    decimal.Decimal
	ReplayBalance  decimal.Decimal
	Breaks         []ChainBreak
}

func (r AuditReport) Consistent() bool { return len(r.Breaks) == 0 }

func audit(account Account, ordered []Movement) AuditReport {
	replayed := Replay(account.InitialBalance, ordered)
	report := AuditReport{
		AccountID:      account.ID,
		InitialBalance: account.InitialBalance,
		Movements:      len(ordered),
		TailBalance:    TailBalance(account.InitialBalance, ordered),
		ReplayBalance:  account.InitialBalance,
		Breaks:         []ChainBreak{},
	}
	for i, m := range ordered {
		if !m.AvailableBalance.Equal(replayed[i]) {
			report.Breaks = append(report.Breaks, ChainBreak{
				Movement: m,
				Recorded: m.AvailableBalance,
				Expected: replayed[i],
			})
		}
	}
	if len(replayed) > 0 {
		report.ReplayBalance = replayed[len(replayed)-1]
	}
	return report
}
