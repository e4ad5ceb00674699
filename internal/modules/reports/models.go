// Package reports aggregates ledger data into daily, monthly and cash-flow
// summaries. Report periods are specified in Jalali terms and translated to
// Gregorian ranges before any query runs.
package reports

// KindTotals aggregates one transaction kind within a period
type KindTotals struct {
	Count       int   `json:"count"`
	TotalAmount int64 `json:"total_amount"`
}

// Summary is the shape shared by daily and monthly reports. TotalIncome sums
// receipts, TotalExpense sums payments; transfers move money between own
// accounts and count toward neither.
type Summary struct {
	Period       string                `json:"period"`
	ByKind       map[string]KindTotals `json:"by_kind"`
	TotalIncome  int64                 `json:"total_income"`
	TotalExpense int64                 `json:"total_expense"`
	Net          int64                 `json:"net"`
}

// CashFlowPoint is one day in a cash-flow report. RunningBalance is the
// prefix sum of NetFlow in ascending date order.
type CashFlowPoint struct {
	Date           string `json:"date"`
	JalaliDate     string `json:"jalali_date"`
	Income         int64  `json:"income"`
	Expense        int64  `json:"expense"`
	NetFlow        int64  `json:"net_flow"`
	RunningBalance int64  `json:"running_balance"`
}

// FlowStats summarizes the distribution of daily net flows
type FlowStats struct {
	MeanNetFlow   float64 `json:"mean_net_flow"`
	StdDevNetFlow float64 `json:"std_dev_net_flow"`
}

// CashFlowReport is the full cash-flow answer: the day series, distribution
// stats over the daily net flows, and a smoothed trend line.
type CashFlowReport struct {
	Start  string          `json:"start"`
	End    string          `json:"end"`
	Days   []CashFlowPoint `json:"days"`
	Stats  FlowStats       `json:"stats"`
	Trend  []float64       `json:"trend,omitempty"`
	Period int             `json:"trend_period,omitempty"`
}
